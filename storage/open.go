package storage

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"agenda-tracker/config"
)

// Open builds the backend selected by cfg without any caching layer.
func Open(cfg config.Config) (Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case config.BackendWorkbook:
		return OpenWorkbook(cfg.WorkbookPath, cfg.Dashboard.Boards)
	case config.BackendTables:
		return NewTableStore(cfg.ConnectionString, cfg.RevisionsTable, cfg.UsersTable)
	case config.BackendRemote:
		return NewRemoteClient(cfg.RemoteURL, nil), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// NewRedisClient accepts either a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func NewRedisClient(conn string) *redis.Client {
	opts, err := redis.ParseURL(conn)
	if err != nil {
		parts := strings.Split(conn, ",")
		opts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				opts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					opts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return redis.NewClient(opts)
}
