package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startTestWatcher(t *testing.T, path string) chan *Config {
	t.Helper()

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	w.debounce = 50 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnChange(func(c *Config) { got <- c })
	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return got
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := Default()
	cfg.Storage.Bucket = "bucket-a"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := startTestWatcher(t, path)

	cfg.Storage.Bucket = "bucket-b"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save change: %v", err)
	}

	select {
	case next := <-got:
		if next.Storage.Bucket != "bucket-b" {
			t.Errorf("reloaded bucket = %q, want bucket-b", next.Storage.Bucket)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload within 3s of config change")
	}
}

func TestWatcher_SkipsIdenticalRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := Default()
	cfg.Storage.Bucket = "bucket-a"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := startTestWatcher(t, path)

	// Same contents back to disk; the fingerprint matches the baseline taken
	// in Start, so handlers must stay quiet.
	if err := cfg.Save(path); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-got:
		t.Fatal("identical rewrite should not fire handlers")
	case <-time.After(700 * time.Millisecond):
	}
}

func TestWatcher_IgnoresInvalidThenRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := Default()
	cfg.Storage.Bucket = "bucket-a"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := startTestWatcher(t, path)

	if err := os.WriteFile(path, []byte("{ this is not json5"), 0o600); err != nil {
		t.Fatalf("write broken config: %v", err)
	}

	select {
	case <-got:
		t.Fatal("unparseable config should not fire handlers")
	case <-time.After(700 * time.Millisecond):
	}

	cfg.Storage.Bucket = "bucket-b"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save recovery: %v", err)
	}

	select {
	case next := <-got:
		if next.Storage.Bucket != "bucket-b" {
			t.Errorf("reloaded bucket = %q, want bucket-b", next.Storage.Bucket)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after config recovered")
	}
}
