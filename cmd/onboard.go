package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pairgate/pairgate/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard: channels, storage, ops endpoint",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║           pairgate — Setup Wizard            ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	cfgPath := resolveConfigPath()

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Found existing config at %s\n", cfgPath)
		useExisting, err := promptConfirm("Use existing config as base?", true)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		if useExisting {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				fmt.Printf("Warning: could not load existing config: %v\n", err)
				cfg = config.Default()
			} else {
				cfg = loaded
			}
		} else {
			cfg = config.Default()
		}
	} else {
		cfg = config.Default()
	}

	// --- Declare wizard variables, pre-filled from existing config ---
	var (
		selectedChannels []string
		telegramToken    = cfg.Channels.Telegram.Token
		telegramAllow    = strings.Join(cfg.Channels.Telegram.AllowFrom, ",")
		discordToken     = cfg.Channels.Discord.Token
		discordAllow     = strings.Join(cfg.Channels.Discord.AllowFrom, ",")

		bucket    = cfg.Storage.Bucket
		region    = cfg.Storage.Region
		endpoint  = cfg.Storage.Endpoint
		accessKey = cfg.Storage.AccessKey
		secretKey string

		opsEnabled = cfg.Ops.Enabled
		opsPortStr = strconv.Itoa(cfg.Ops.Port)
	)

	if cfg.Channels.Telegram.Enabled {
		selectedChannels = append(selectedChannels, "telegram")
	}
	if cfg.Channels.Discord.Enabled {
		selectedChannels = append(selectedChannels, "discord")
	}

	// Tokens already provided via environment count as existing.
	if telegramToken == "" {
		telegramToken = os.Getenv("PAIRGATE_TELEGRAM_TOKEN")
	}
	if discordToken == "" {
		discordToken = os.Getenv("PAIRGATE_DISCORD_TOKEN")
	}
	if region == "" {
		region = "us-east-1"
	}

	// ── Step 1: Channels ──
	var err error
	selectedChannels, err = promptMultiSelect("Step 1 · Channels (select at least 1)", "Where users will run pairing commands", []SelectOption[string]{
		{"Telegram", "telegram"},
		{"Discord", "discord"},
	}, selectedChannels)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}

	hasChannel := func(ch string) bool {
		for _, c := range selectedChannels {
			if c == ch {
				return true
			}
		}
		return false
	}

	if hasChannel("telegram") {
		token, err := promptPassword("Telegram Bot Token", "Get from @BotFather on Telegram; empty keeps the current one")
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		if token != "" {
			telegramToken = token
		}
		telegramAllow, err = promptString("Telegram allowed chats", "Comma-separated chat IDs; empty admits every chat", telegramAllow)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
	}

	if hasChannel("discord") {
		token, err := promptPassword("Discord Bot Token", "Bot token from the Discord developer portal; empty keeps the current one")
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		if token != "" {
			discordToken = token
		}
		discordAllow, err = promptString("Discord allowed channels", "Comma-separated channel IDs; empty admits every channel", discordAllow)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
	}

	// ── Step 2: Storage ──
	bucket, err = promptString("Step 2 · Storage — S3 Bucket", "Credential bundles are uploaded here after pairing", bucket)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	region, err = promptString("S3 Region", "", region)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	endpoint, err = promptString("S3 Endpoint", "Leave empty for AWS; set for MinIO, R2 and other compatible stores", endpoint)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	accessKey, err = promptString("S3 Access Key ID", "Leave empty to use the ambient AWS credential chain", accessKey)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	if accessKey != "" {
		secretKey, err = promptPassword("S3 Secret Access Key", "Empty keeps the current one")
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		if secretKey == "" {
			secretKey = cfg.Storage.SecretKey
		}
	}

	encrypt, err := promptConfirm("Encrypt credential bundles before upload? (AES-256-GCM)", true)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}

	// ── Step 3: Ops endpoint ──
	opsEnabled, err = promptConfirm("Step 3 · Enable the local ops endpoint? (used by pairgate sessions and doctor)", opsEnabled)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	if opsEnabled {
		opsPortStr, err = promptString("Ops Port", "Loopback WebSocket port for the CLI", opsPortStr)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
	}

	// --- Post-form validation ---
	var errs []string

	if len(selectedChannels) == 0 {
		errs = append(errs, "At least one channel must be selected (Telegram or Discord)")
	}
	if hasChannel("telegram") && telegramToken == "" {
		errs = append(errs, "Telegram bot token is required")
	}
	if hasChannel("discord") && discordToken == "" {
		errs = append(errs, "Discord bot token is required")
	}
	if bucket == "" {
		errs = append(errs, "S3 bucket is required")
	}
	if accessKey != "" && secretKey == "" {
		errs = append(errs, "S3 secret access key is required when an access key ID is set")
	}
	if opsEnabled {
		if _, err := strconv.Atoi(opsPortStr); err != nil {
			errs = append(errs, fmt.Sprintf("Invalid ops port: %s", opsPortStr))
		}
	}

	if len(errs) > 0 {
		fmt.Println()
		fmt.Println("  Validation errors:")
		for _, e := range errs {
			fmt.Printf("    • %s\n", e)
		}
		fmt.Println()
		fmt.Println("  Please re-run: pairgate onboard")
		return
	}

	// --- Verify channel credentials ---
	fmt.Println()
	fmt.Println("── Verifying Credentials ──")
	verifyFailed := false
	if hasChannel("telegram") {
		fmt.Print("  Telegram: ")
		if name, verr := verifyTelegramToken(telegramToken); verr == nil {
			fmt.Printf("OK (@%s)\n", name)
		} else if verr.fatal {
			fmt.Printf("FAILED: %s\n", verr.message)
			verifyFailed = true
		} else {
			fmt.Printf("WARNING: %s\n", verr.message)
		}
	}
	if hasChannel("discord") {
		fmt.Print("  Discord:  ")
		if name, verr := verifyDiscordToken(discordToken); verr == nil {
			fmt.Printf("OK (%s)\n", name)
		} else if verr.fatal {
			fmt.Printf("FAILED: %s\n", verr.message)
			verifyFailed = true
		} else {
			fmt.Printf("WARNING: %s\n", verr.message)
		}
	}
	if verifyFailed {
		saveAnyway, err := promptConfirm("Credential verification failed. Save config anyway?", false)
		if err != nil || !saveAnyway {
			fmt.Println("Cancelled. Please re-run: pairgate onboard")
			return
		}
	}

	// --- Apply collected values ---
	cfg.Channels.Telegram.Enabled = hasChannel("telegram")
	if cfg.Channels.Telegram.Enabled {
		cfg.Channels.Telegram.Token = telegramToken
		cfg.Channels.Telegram.AllowFrom = splitList(telegramAllow)
	} else {
		cfg.Channels.Telegram.Token = ""
	}

	cfg.Channels.Discord.Enabled = hasChannel("discord")
	if cfg.Channels.Discord.Enabled {
		cfg.Channels.Discord.Token = discordToken
		cfg.Channels.Discord.AllowFrom = splitList(discordAllow)
	} else {
		cfg.Channels.Discord.Token = ""
	}

	cfg.Storage.Provider = "s3"
	cfg.Storage.Bucket = bucket
	cfg.Storage.Region = region
	cfg.Storage.Endpoint = endpoint
	cfg.Storage.AccessKey = accessKey
	if accessKey == "" {
		cfg.Storage.SecretKey = ""
	} else if secretKey != "" {
		cfg.Storage.SecretKey = secretKey
	}

	if encrypt {
		if cfg.Storage.EncryptionKey == "" {
			cfg.Storage.EncryptionKey = onboardGenerateToken(32)
			fmt.Println("  Generated encryption key (AES-256-GCM)")
		}
	} else {
		cfg.Storage.EncryptionKey = ""
	}

	cfg.Ops.Enabled = opsEnabled
	if opsEnabled {
		cfg.Ops.Port, _ = strconv.Atoi(opsPortStr)
		if cfg.Ops.Host == "" {
			cfg.Ops.Host = "127.0.0.1"
		}
		if cfg.Ops.Token == "" {
			cfg.Ops.Token = onboardGenerateToken(16)
			fmt.Printf("  Generated ops token: %s\n", cfg.Ops.Token)
		}
	}

	sessionsDir := config.ExpandHome(cfg.Pairing.SessionsDir)
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		fmt.Printf("Warning: could not create sessions dir: %v\n", err)
	}

	// --- Save config; secrets go to .env.local, not the config file ---
	fmt.Println()
	fmt.Println("── Saving Config ──")
	fmt.Println()

	savedTgToken := cfg.Channels.Telegram.Token
	savedDcToken := cfg.Channels.Discord.Token
	savedAccessKey := cfg.Storage.AccessKey
	savedSecretKey := cfg.Storage.SecretKey
	savedEncKey := cfg.Storage.EncryptionKey
	savedOpsToken := cfg.Ops.Token

	cfg.Channels.Telegram.Token = ""
	cfg.Channels.Discord.Token = ""
	cfg.Storage.AccessKey = ""
	cfg.Storage.SecretKey = ""
	cfg.Storage.EncryptionKey = ""
	cfg.Ops.Token = ""

	saveErr := cfg.Save(cfgPath)

	cfg.Channels.Telegram.Token = savedTgToken
	cfg.Channels.Discord.Token = savedDcToken
	cfg.Storage.AccessKey = savedAccessKey
	cfg.Storage.SecretKey = savedSecretKey
	cfg.Storage.EncryptionKey = savedEncKey
	cfg.Ops.Token = savedOpsToken

	if saveErr != nil {
		fmt.Printf("Error saving config: %v\n", saveErr)
		os.Exit(1)
	}
	fmt.Printf("Config saved to %s (no secrets)\n", cfgPath)

	envPath := filepath.Join(filepath.Dir(cfgPath), ".env.local")
	if err := onboardWriteEnvFile(envPath, cfg); err != nil {
		fmt.Printf("Error writing %s: %v\n", envPath, err)
		os.Exit(1)
	}
	fmt.Printf("Secrets saved to %s\n", envPath)

	// --- Summary ---
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║               Setup Complete!                ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()
	if cfg.Channels.Telegram.Enabled {
		fmt.Printf("  Telegram:   enabled%s\n", allowSummary(cfg.Channels.Telegram.AllowFrom))
	} else {
		fmt.Println("  Telegram:   disabled")
	}
	if cfg.Channels.Discord.Enabled {
		fmt.Printf("  Discord:    enabled%s\n", allowSummary(cfg.Channels.Discord.AllowFrom))
	} else {
		fmt.Println("  Discord:    disabled")
	}
	fmt.Printf("  Storage:    s3://%s (%s)\n", cfg.Storage.Bucket, cfg.Storage.Region)
	if cfg.Storage.EncryptionKey != "" {
		fmt.Println("  Encryption: on (AES-256-GCM)")
	} else {
		fmt.Println("  Encryption: off")
	}
	if cfg.Ops.Enabled {
		fmt.Printf("  Ops:        ws://%s:%d\n", cfg.Ops.Host, cfg.Ops.Port)
		fmt.Printf("  Ops token:  %s\n", cfg.Ops.Token)
	} else {
		fmt.Println("  Ops:        disabled")
	}
	fmt.Printf("  Sessions:   %s\n", cfg.Pairing.SessionsDir)
	fmt.Println()
	fmt.Println("To start the bot:")
	fmt.Println()
	fmt.Printf("  source %s && pairgate\n", envPath)
	fmt.Println()
}

// onboardGenerateToken returns n random bytes, hex encoded.
func onboardGenerateToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// onboardWriteEnvFile writes the secrets as export lines so the operator can
// source the file before starting the daemon.
func onboardWriteEnvFile(path string, cfg *config.Config) error {
	var b strings.Builder
	b.WriteString("# pairgate secrets. Source before starting:\n")
	fmt.Fprintf(&b, "#   source %s && pairgate\n", path)

	writeLine := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "export %s=%q\n", key, value)
		}
	}
	writeLine("PAIRGATE_TELEGRAM_TOKEN", cfg.Channels.Telegram.Token)
	writeLine("PAIRGATE_DISCORD_TOKEN", cfg.Channels.Discord.Token)
	writeLine("PAIRGATE_S3_ACCESS_KEY", cfg.Storage.AccessKey)
	writeLine("PAIRGATE_S3_SECRET_KEY", cfg.Storage.SecretKey)
	writeLine("PAIRGATE_ENCRYPTION_KEY", cfg.Storage.EncryptionKey)
	writeLine("PAIRGATE_OPS_TOKEN", cfg.Ops.Token)

	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// splitList parses a comma-separated list, trimming spaces and dropping
// empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func allowSummary(allow []string) string {
	if len(allow) == 0 {
		return " (open to all chats)"
	}
	return fmt.Sprintf(" (%d allowed)", len(allow))
}
