package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParsesJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	raw := `{
  // comments are allowed
  channels: {
    telegram: { enabled: true, token: "123:abc", allow_from: ["42"] },
  },
  storage: { bucket: "creds", region: "us-east-1" },
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Errorf("telegram should be enabled")
	}
	if cfg.Channels.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Storage.Prefix != "sessions" {
		t.Errorf("prefix default not applied, got %q", cfg.Storage.Prefix)
	}
	if cfg.Pairing.SettleDelayMS != 3000 {
		t.Errorf("settle delay default not applied, got %d", cfg.Pairing.SettleDelayMS)
	}
	if cfg.Ops.Port != 9690 {
		t.Errorf("ops port default not applied, got %d", cfg.Ops.Port)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := Default()
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "123:abc"
	cfg.Storage.Bucket = "creds"
	cfg.Ops.Token = "secret"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Channels.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", got.Channels.Telegram.Token)
	}
	if got.Storage.Bucket != "creds" {
		t.Errorf("bucket = %q", got.Storage.Bucket)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PAIRGATE_TELEGRAM_TOKEN", "env-token")
	t.Setenv("PAIRGATE_S3_SECRET_KEY", "env-secret")

	cfg := Default()
	cfg.Channels.Telegram.Token = "file-token"
	cfg.ApplyEnvOverrides()

	if cfg.Channels.Telegram.Token != "env-token" {
		t.Errorf("env should win, got %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Storage.SecretKey != "env-secret" {
		t.Errorf("secret key = %q", cfg.Storage.SecretKey)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = "123:abc"
		cfg.Storage.Bucket = "creds"
		cfg.Ops.Token = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "telegram enabled without token",
			mutate:  func(c *Config) { c.Channels.Telegram.Token = " " },
			wantErr: "token is empty",
		},
		{
			name: "no channel enabled",
			mutate: func(c *Config) {
				c.Channels.Telegram.Enabled = false
			},
			wantErr: "no channel enabled",
		},
		{
			name:    "missing bucket",
			mutate:  func(c *Config) { c.Storage.Bucket = "" },
			wantErr: "storage.bucket",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Storage.Provider = "gcs" },
			wantErr: "unknown storage.provider",
		},
		{
			name:    "bad encryption key length",
			mutate:  func(c *Config) { c.Storage.EncryptionKey = "abcd" },
			wantErr: "encryption_key",
		},
		{
			name:    "ops enabled without token",
			mutate:  func(c *Config) { c.Ops.Token = "" },
			wantErr: "ops.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestHash(t *testing.T) {
	a := Default()
	b := Default()
	if a.Hash() == "" {
		t.Fatal("empty hash")
	}
	if a.Hash() != b.Hash() {
		t.Error("identical configs hash differently")
	}

	b.Channels.Telegram.Token = "123:abc"
	if a.Hash() == b.Hash() {
		t.Error("changed config kept the same hash")
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.Channels.Telegram.Token = "123456:secret-token"
	cfg.Storage.SecretKey = "verysecretkey"
	cfg.Ops.Token = "tok"

	masked := cfg.MaskedCopy()

	if masked.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Errorf("telegram token not masked")
	}
	if !strings.Contains(masked.Channels.Telegram.Token, "...") {
		t.Errorf("long secret should keep edges, got %q", masked.Channels.Telegram.Token)
	}
	if masked.Ops.Token != "******" {
		t.Errorf("short secret should be fully masked, got %q", masked.Ops.Token)
	}

	// original untouched
	if cfg.Storage.SecretKey != "verysecretkey" {
		t.Errorf("original mutated")
	}
}
