package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("ADDR", "")
	t.Setenv("STAC_COLLECTIONS_HREF", "")
	t.Setenv("STAC_STORE_HREFS", "")
	cfg := FromEnv()
	if cfg.Addr != ":8090" || cfg.DefaultLimit != 10 || cfg.MaxLimit != 10_000 || cfg.ReloadInterval != time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without a collections source")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STAC_COLLECTIONS_HREF", "redis://stac:collections")
	t.Setenv("STAC_STORE_HREFS", " a.db, ,b.db ")
	t.Setenv("STAC_COLLECTIONS_RELOAD", "5s")
	t.Setenv("STAC_COLLECTIONS_WATCH", "yes")
	t.Setenv("STAC_MAX_LIMIT", "50")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REFRESH_KAFKA_ENABLED", "true")
	t.Setenv("REFRESH_KAFKA_TOPIC", "refresh")
	t.Setenv("LOG_SAMPLE_N", "notanumber")

	cfg := FromEnv()
	if cfg.CollectionsHref != "redis://stac:collections" || !reflect.DeepEqual(cfg.StoreHrefs, []string{"a.db", "b.db"}) {
		t.Fatalf("hrefs: %+v", cfg)
	}
	if cfg.ReloadInterval != 5*time.Second || !cfg.WatchCollections || cfg.MaxLimit != 50 {
		t.Fatalf("refresh/limits: %+v", cfg)
	}
	if !cfg.RefreshKafka.Enabled || cfg.RefreshKafka.Topic != "refresh" || cfg.RefreshKafka.GroupID != "stac-federation" {
		t.Fatalf("kafka: %+v", cfg.RefreshKafka)
	}
	if cfg.LogSampleN != 0 {
		t.Fatalf("bad int should keep default, got %d", cfg.LogSampleN)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RedisSourceNeedsAddr(t *testing.T) {
	cfg := Defaults()
	cfg.CollectionsHref = "redis://k"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for redis source without address")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stac.toml")
	body := `
addr = ":7000"
hrefs = ["stores/a.db", "/abs/b.db", "file:///c.db"]

[collections]
href = "collections.json"
reload = "2m"
watch = true

[search]
max_limit = 500

[kafka]
enabled = true
brokers = "k1:9092,k2:9092"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ADDR", ":7777")
	t.Setenv("STAC_STORE_HREFS", "")
	t.Setenv("STAC_COLLECTIONS_HREF", "")
	t.Setenv("STAC_COLLECTIONS_RELOAD", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Fatalf("env should override file addr, got %q", cfg.Addr)
	}
	wantStores := []string{filepath.Join(dir, "stores/a.db"), "/abs/b.db", "file:///c.db"}
	if !reflect.DeepEqual(cfg.StoreHrefs, wantStores) {
		t.Fatalf("stores=%v want %v", cfg.StoreHrefs, wantStores)
	}
	if cfg.CollectionsHref != filepath.Join(dir, "collections.json") {
		t.Fatalf("collections href=%q", cfg.CollectionsHref)
	}
	if cfg.ReloadInterval != 2*time.Minute || !cfg.WatchCollections || cfg.MaxLimit != 500 || cfg.DefaultLimit != 10 {
		t.Fatalf("unexpected: %+v", cfg)
	}
	if !cfg.RefreshKafka.Enabled || cfg.RefreshKafka.Brokers != "k1:9092,k2:9092" {
		t.Fatalf("kafka: %+v", cfg.RefreshKafka)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[collections]\nreload = \"soon\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for an invalid duration")
	}
}
