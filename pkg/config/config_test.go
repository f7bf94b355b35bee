package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Index.MaxSegmentsBeforeMerge != 8 {
		t.Errorf("MaxSegmentsBeforeMerge = %d, want 8", cfg.Index.MaxSegmentsBeforeMerge)
	}
	if cfg.Search.DefaultLimit != 25 || cfg.Search.MaxResults != 500 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Kafka.Topics.EmailIngest != "email-ingest" {
		t.Errorf("EmailIngest topic = %q", cfg.Kafka.Topics.EmailIngest)
	}
	if cfg.Postgres.Enabled {
		t.Error("Postgres enabled by default")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	data := `
server:
  port: 9999
index:
  dir: /tmp/custom-index
  mergeInterval: 30s
redis:
  cacheTTL: 2m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Index.Dir != "/tmp/custom-index" {
		t.Errorf("Index.Dir = %q", cfg.Index.Dir)
	}
	if cfg.Index.MergeInterval != 30*time.Second {
		t.Errorf("MergeInterval = %v, want 30s", cfg.Index.MergeInterval)
	}
	if cfg.Redis.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %v, want 2m", cfg.Redis.CacheTTL)
	}
	// Untouched values keep their defaults.
	if cfg.Search.DefaultLimit != 25 {
		t.Errorf("DefaultLimit = %d, want default 25", cfg.Search.DefaultLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IF_SERVER_PORT", "7070")
	t.Setenv("IF_INDEX_DIR", "/var/lib/index")
	t.Setenv("IF_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("IF_POSTGRES_HOST", "db.internal")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Index.Dir != "/var/lib/index" {
		t.Errorf("Index.Dir = %q", cfg.Index.Dir)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Postgres.Enabled || cfg.Postgres.Host != "db.internal" {
		t.Errorf("Postgres = %+v, want enabled at db.internal", cfg.Postgres)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "localhost", Port: 5432,
		User: "app", Password: "secret",
		Database: "maildb", SSLMode: "disable",
	}
	want := "host=localhost port=5432 user=app password=secret dbname=maildb sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
