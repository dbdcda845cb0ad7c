package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"agenda-tracker/domain"
)

// Storage backends selectable through STORAGE_BACKEND.
const (
	BackendSQLite   = "sqlite"
	BackendWorkbook = "workbook"
	BackendTables   = "tables"
	BackendRemote   = "remote"
)

// Config is the service configuration. YAML supplies dashboard settings and
// defaults; environment variables override everything else.
type Config struct {
	Port      string `yaml:"port"`
	Debug     bool   `yaml:"debug"`
	LogFormat string `yaml:"logFormat"`
	LogFile   string `yaml:"logFile"`

	Backend          string `yaml:"backend"`
	SQLitePath       string `yaml:"sqlitePath"`
	WorkbookPath     string `yaml:"workbookPath"`
	ConnectionString string `yaml:"-"`
	RevisionsTable   string `yaml:"revisionsTable"`
	UsersTable       string `yaml:"usersTable"`
	EventsQueue      string `yaml:"eventsQueue"`
	RemoteURL        string `yaml:"remoteURL"`

	RedisConnection string        `yaml:"-"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
	ForwardLockTTL  time.Duration `yaml:"forwardLockTTL"`

	LineChannelID  string        `yaml:"lineChannelID"`
	LineJWKSURL    string        `yaml:"lineJWKSURL"`
	SessionSecret  string        `yaml:"-"`
	SessionTTL     time.Duration `yaml:"sessionTTL"`
	AuthTestMode   bool          `yaml:"-"`
	TestJWTSecret  string        `yaml:"-"`
	DevIdentity    bool          `yaml:"devIdentity"`
	PublishWorkers int           `yaml:"publishWorkers"`
	PublishBuffer  int           `yaml:"publishBuffer"`

	Dashboard domain.Settings `yaml:"dashboard"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:           "8080",
		LogFormat:      "text",
		Backend:        BackendSQLite,
		SQLitePath:     "agenda.db",
		WorkbookPath:   "agenda.xlsx",
		RevisionsTable: "revisions",
		UsersTable:     "users",
		CacheTTL:       time.Minute,
		ForwardLockTTL: 30 * time.Second,
		LineJWKSURL:    "https://api.line.me/oauth2/v2.1/certs",
		SessionTTL:     12 * time.Hour,
		PublishWorkers: 2,
		PublishBuffer:  64,
		Dashboard:      domain.DefaultSettings(),
	}
}

// Load reads .env, then CONFIG_FILE, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not read .env")
	}
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				errs = append(errs, fmt.Errorf("invalid %s: %q", key, v))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Errorf("invalid %s: must be greater than zero", key))
				return
			}
			*dst = n
		}
	}

	str("PORT", &c.Port)
	boolean("DEBUG", &c.Debug)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_FILE", &c.LogFile)
	str("STORAGE_BACKEND", &c.Backend)
	str("SQLITE_PATH", &c.SQLitePath)
	str("WORKBOOK_PATH", &c.WorkbookPath)
	str("STORAGE_CONNECTION_STRING", &c.ConnectionString)
	str("REVISIONS_TABLE", &c.RevisionsTable)
	str("USERS_TABLE", &c.UsersTable)
	str("FORWARD_EVENTS_QUEUE", &c.EventsQueue)
	str("REMOTE_API_URL", &c.RemoteURL)
	str("REDIS_CONNECTION_STRING", &c.RedisConnection)
	duration("CACHE_TTL", &c.CacheTTL)
	duration("FORWARD_LOCK_TTL", &c.ForwardLockTTL)
	str("LINE_CHANNEL_ID", &c.LineChannelID)
	str("LINE_JWKS_URL", &c.LineJWKSURL)
	str("SESSION_SECRET", &c.SessionSecret)
	duration("SESSION_TTL", &c.SessionTTL)
	str("TEST_JWT_SECRET", &c.TestJWTSecret)
	boolean("DEV_IDENTITY", &c.DevIdentity)
	integer("PUBLISH_WORKERS", &c.PublishWorkers)
	integer("PUBLISH_BUFFER", &c.PublishBuffer)
	if v, ok := lookup("AUTH_TEST_MODE"); ok {
		c.AuthTestMode = v == "1" || strings.EqualFold(v, "true")
	}
	c.Backend = strings.ToLower(c.Backend)
	return errors.Join(errs...)
}

// Validate checks that the selected backend and auth mode are usable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	case BackendWorkbook:
		if c.WorkbookPath == "" {
			return errors.New("missing WORKBOOK_PATH")
		}
	case BackendTables:
		if c.ConnectionString == "" || c.RevisionsTable == "" || c.UsersTable == "" {
			return errors.New("missing storage config")
		}
	case BackendRemote:
		if c.RemoteURL == "" {
			return errors.New("missing REMOTE_API_URL")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Backend)
	}
	if c.EventsQueue != "" && c.ConnectionString == "" {
		return errors.New("FORWARD_EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.AuthTestMode {
		if c.TestJWTSecret == "" {
			return errors.New("AUTH_TEST_MODE requires TEST_JWT_SECRET")
		}
	} else if c.LineChannelID == "" && !c.DevIdentity {
		return errors.New("missing LINE_CHANNEL_ID")
	}
	if len(c.Dashboard.Boards) == 0 {
		return errors.New("dashboard needs at least one board")
	}
	return nil
}
