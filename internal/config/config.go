// Package config loads and persists the pairgate configuration file.
//
// The on-disk format is JSON5 (comments and trailing commas allowed), so
// hand-edited configs stay friendly. Saves always emit plain JSON, which every
// JSON5 parser accepts.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// DefaultDirName is the dot-directory under $HOME that holds the config file
// and per-session credential directories.
const DefaultDirName = ".pairgate"

// ConfigFileName is the config file name inside the pairgate directory.
const ConfigFileName = "config.json5"

// Config is the root configuration.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Storage   StorageConfig   `json:"storage"`
	Pairing   PairingConfig   `json:"pairing"`
	Ops       OpsConfig       `json:"ops"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ChannelsConfig groups the chat front ends.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Dispatch DispatchConfig `json:"dispatch"`
}

// DispatchConfig tunes inbound command handling across all channels.
type DispatchConfig struct {
	// QueueCap bounds commands waiting per chat; the oldest is dropped
	// when a new one arrives over the cap.
	QueueCap int `json:"queue_cap"`
	// Workers bounds commands executing at once across all chats.
	Workers int `json:"workers"`
	// DedupeTTLMin is how long delivered message IDs are remembered so
	// redelivered updates are not executed twice.
	DedupeTTLMin int `json:"dedupe_ttl_min"`
	// SendPerMinute rate-limits outbound notifications per chat. Zero
	// disables the limiter.
	SendPerMinute int `json:"send_per_minute"`
}

// TelegramConfig configures the Telegram front end.
// An empty AllowFrom list admits every chat; otherwise only listed chat IDs
// may run pairing commands.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// DiscordConfig configures the Discord front end.
type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// StorageConfig configures the credential publisher target.
type StorageConfig struct {
	Provider  string `json:"provider"` // currently "s3"
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"` // optional, for S3-compatible stores
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Prefix    string `json:"prefix"` // object key prefix, default "sessions"
	// EncryptionKey, when set, AES-GCM seals credential blobs before upload.
	// Hex-encoded 32 bytes.
	EncryptionKey string `json:"encryption_key"`
}

// PairingConfig tunes the pairing orchestrator.
type PairingConfig struct {
	// SessionsDir holds one subdirectory per in-flight pairing session.
	SessionsDir string `json:"sessions_dir"`
	// SettleDelayMS is the wait after registration before the credential
	// file is read, giving the connection library time to flush it.
	SettleDelayMS int `json:"settle_delay_ms"`
	// MaxActive caps concurrently pairing chats. Zero means no cap.
	MaxActive int `json:"max_active"`
}

// OpsConfig configures the local operations RPC endpoint.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Token   string `json:"token"`
}

// TelemetryConfig configures optional trace export (requires the otel build tag).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint"`
	Protocol    string            `json:"protocol"` // "grpc" or "http"
	Insecure    bool              `json:"insecure"`
	ServiceName string            `json:"service_name"`
	Headers     map[string]string `json:"headers"`
}

// DefaultDir returns the pairgate directory, honoring PAIRGATE_HOME.
func DefaultDir() string {
	if dir := os.Getenv("PAIRGATE_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), ConfigFileName)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// Default returns a config populated with defaults. Tokens and storage
// coordinates are left empty for onboarding to fill in.
func Default() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Dispatch: DispatchConfig{
				QueueCap:      8,
				Workers:       8,
				DedupeTTLMin:  20,
				SendPerMinute: 20,
			},
		},
		Storage: StorageConfig{
			Provider: "s3",
			Prefix:   "sessions",
		},
		Pairing: PairingConfig{
			SessionsDir:   filepath.Join(DefaultDir(), "sessions"),
			SettleDelayMS: 3000,
			MaxActive:     32,
		},
		Ops: OpsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9690,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "pairgate",
		},
	}
}

// Load reads and parses the config file, filling defaults for absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes the config atomically (temp file + rename) with 0600 perms.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Channels.Dispatch.QueueCap <= 0 {
		c.Channels.Dispatch.QueueCap = 8
	}
	if c.Channels.Dispatch.Workers <= 0 {
		c.Channels.Dispatch.Workers = 8
	}
	if c.Channels.Dispatch.DedupeTTLMin <= 0 {
		c.Channels.Dispatch.DedupeTTLMin = 20
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "s3"
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = "sessions"
	}
	if c.Pairing.SessionsDir == "" {
		c.Pairing.SessionsDir = filepath.Join(DefaultDir(), "sessions")
	}
	if c.Pairing.SettleDelayMS <= 0 {
		c.Pairing.SettleDelayMS = 3000
	}
	if c.Ops.Host == "" {
		c.Ops.Host = "127.0.0.1"
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = 9690
	}
	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = "grpc"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "pairgate"
	}
}

// ApplyEnvOverrides lets environment variables win over file values, so
// deployments can keep secrets out of the config file.
func (c *Config) ApplyEnvOverrides() {
	overrideString(&c.Channels.Telegram.Token, "PAIRGATE_TELEGRAM_TOKEN")
	overrideString(&c.Channels.Discord.Token, "PAIRGATE_DISCORD_TOKEN")
	overrideString(&c.Storage.Bucket, "PAIRGATE_S3_BUCKET")
	overrideString(&c.Storage.Region, "PAIRGATE_S3_REGION")
	overrideString(&c.Storage.Endpoint, "PAIRGATE_S3_ENDPOINT")
	overrideString(&c.Storage.AccessKey, "PAIRGATE_S3_ACCESS_KEY")
	overrideString(&c.Storage.SecretKey, "PAIRGATE_S3_SECRET_KEY")
	overrideString(&c.Storage.EncryptionKey, "PAIRGATE_ENCRYPTION_KEY")
	overrideString(&c.Ops.Token, "PAIRGATE_OPS_TOKEN")
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate checks that enabled subsystems have what they need to start.
func (c *Config) Validate() error {
	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram.enabled is true but token is empty")
	}
	if c.Channels.Discord.Enabled && strings.TrimSpace(c.Channels.Discord.Token) == "" {
		return fmt.Errorf("channels.discord.enabled is true but token is empty")
	}
	if !c.Channels.Telegram.Enabled && !c.Channels.Discord.Enabled {
		return fmt.Errorf("no channel enabled; enable channels.telegram or channels.discord")
	}
	switch c.Storage.Provider {
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	if c.Storage.EncryptionKey != "" && len(c.Storage.EncryptionKey) != 64 {
		return fmt.Errorf("storage.encryption_key must be 64 hex chars (32 bytes)")
	}
	if c.Ops.Enabled && c.Ops.Token == "" {
		return fmt.Errorf("ops.enabled is true but ops.token is empty")
	}
	return nil
}

// Hash fingerprints the effective configuration. The watcher uses it to tell
// real changes apart from file rewrites with identical contents.
func (c *Config) Hash() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// MaskedCopy returns a deep copy with secrets replaced for display.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	cp.Channels.Telegram.AllowFrom = append([]string(nil), c.Channels.Telegram.AllowFrom...)
	cp.Channels.Discord.AllowFrom = append([]string(nil), c.Channels.Discord.AllowFrom...)
	if c.Telemetry.Headers != nil {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = maskSecret(v)
		}
	}
	cp.Channels.Telegram.Token = maskSecret(c.Channels.Telegram.Token)
	cp.Channels.Discord.Token = maskSecret(c.Channels.Discord.Token)
	cp.Storage.AccessKey = maskSecret(c.Storage.AccessKey)
	cp.Storage.SecretKey = maskSecret(c.Storage.SecretKey)
	cp.Storage.EncryptionKey = maskSecret(c.Storage.EncryptionKey)
	cp.Ops.Token = maskSecret(c.Ops.Token)
	return &cp
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "..." + s[len(s)-3:]
}
