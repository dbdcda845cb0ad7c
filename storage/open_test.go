package storage

import (
	"path/filepath"
	"testing"

	"agenda-tracker/config"
)

func TestNewRedisClientParsesConnectionStrings(t *testing.T) {
	c := NewRedisClient("cache.example.net:6380,password=s3cret,ssl=True,abortConnect=False")
	opts := c.Options()
	if opts.Addr != "cache.example.net:6380" || opts.Password != "s3cret" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options %+v", opts)
	}

	c = NewRedisClient("redis://:pw@localhost:6379/2")
	opts = c.Options()
	if opts.Addr != "localhost:6379" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "agenda.db")
	b, err := Open(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, ok := b.(*SQLStore); !ok {
		t.Fatalf("expected SQLStore, got %T", b)
	}
	_ = b.(*SQLStore).Close()

	cfg.Backend = config.BackendRemote
	cfg.RemoteURL = "http://localhost:1"
	if b, err = Open(cfg); err != nil {
		t.Fatalf("open remote: %v", err)
	}
	if _, ok := b.(*RemoteClient); !ok {
		t.Fatalf("expected RemoteClient, got %T", b)
	}

	cfg.Backend = "carrier-pigeon"
	if _, err := Open(cfg); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
