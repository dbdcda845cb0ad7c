package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"agenda-tracker/config"
	"agenda-tracker/domain"
	"agenda-tracker/storage"
)

// loadConfig is swapped out in tests.
var loadConfig = config.Load

// NewRoot builds the administrative CLI. Every command works against the
// backend selected by the service configuration.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "agenda",
		Short:         "Administer the agenda tracker task log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		initCmd(),
		importCmd(),
		roleCmd(),
		reportCmd(),
	)
	return root
}

// openBackend opens the configured backend. With Redis configured it goes
// through the same cache as the server so writes evict the served snapshots.
func openBackend() (config.Config, storage.Backend, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	base, err := storage.Open(cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	backend := base
	var rc *redis.Client
	if cfg.RedisConnection != "" {
		rc = storage.NewRedisClient(cfg.RedisConnection)
		backend = storage.NewCache(base, rc, cfg.CacheTTL)
	}
	closeFn := func() {
		if rc != nil {
			_ = rc.Close()
		}
		if c, ok := base.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return cfg, backend, closeFn, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database, workbook template or Azure tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			switch cfg.Backend {
			case config.BackendTables:
				return storage.Provision(cmd.Context(), cfg.ConnectionString,
					[]string{cfg.RevisionsTable, cfg.UsersTable}, []string{cfg.EventsQueue})
			case config.BackendRemote:
				return errors.New("the remote backend is provisioned by its own service")
			}
			backend, err := storage.Open(cfg)
			if err != nil {
				return err
			}
			if c, ok := backend.(io.Closer); ok {
				defer c.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s backend\n", cfg.Backend)
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Copy revisions and users from a workbook into the configured backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			cfg, backend, closeFn, err := openBackend()
			if err != nil {
				return err
			}
			defer closeFn()

			importer, ok := backend.(storage.Importer)
			if !ok {
				return fmt.Errorf("%s backend does not support import", cfg.Backend)
			}
			src, err := storage.OpenWorkbook(args[0], cfg.Dashboard.Boards)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			revs, err := src.FetchRevisions(ctx)
			if err != nil {
				return err
			}
			users, err := src.FetchUsers(ctx)
			if err != nil {
				return err
			}
			if err := importer.Import(ctx, revs, users); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"revisions": len(revs),
				"users":     len(users),
				"backend":   cfg.Backend,
			}).Info("import finished")
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d revisions and %d users\n", len(revs), len(users))
			return nil
		},
	}
}

func parseRole(s string) (domain.Role, error) {
	for _, r := range []domain.Role{domain.RoleOwner, domain.RoleInspector, domain.RoleNone} {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func roleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <userId> <Owner|Inspector|\"No Role\">",
		Short: "Grant or revoke a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[1])
			if err != nil {
				return err
			}
			cfg, backend, closeFn, err := openBackend()
			if err != nil {
				return err
			}
			defer closeFn()

			setter, ok := backend.(storage.RoleSetter)
			if !ok {
				return fmt.Errorf("%s backend does not support role changes", cfg.Backend)
			}
			if err := setter.SetRole(cmd.Context(), args[0], role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var sheet, work, meeting string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the meeting summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if meeting == "" {
				return errors.New("--meeting is required")
			}
			cfg, backend, closeFn, err := openBackend()
			if err != nil {
				return err
			}
			defer closeFn()

			f, err := cfg.Dashboard.ResolveFilter(sheet, work)
			if err != nil {
				return err
			}
			revs, err := backend.FetchRevisions(cmd.Context())
			if err != nil {
				return err
			}
			tasks := domain.MeetingTasks(revs, f, meeting)
			if len(tasks) == 0 {
				return fmt.Errorf("no tasks for %q in %s/%s", meeting, f.Sheet, f.Work)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), domain.MeetingReport(domain.MeetingTitle(meeting), tasks))
			return err
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "Board sheet (defaults to the first configured board)")
	cmd.Flags().StringVar(&work, "work", "", "Work category (defaults to the configured default)")
	cmd.Flags().StringVar(&meeting, "meeting", "", "Meeting number")
	return cmd
}
