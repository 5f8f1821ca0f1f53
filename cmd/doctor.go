package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pairgate/pairgate/internal/config"
	"github.com/pairgate/pairgate/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("pairgate doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
		fmt.Println()
		fmt.Println("Run the setup wizard:  pairgate onboard")
		return
	}
	fmt.Println(" (OK)")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	cfg.ApplyEnvOverrides()

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")

	fmt.Println()
	fmt.Println("  Storage:")
	fmt.Printf("    %-12s %s\n", "Provider:", cfg.Storage.Provider)
	fmt.Printf("    %-12s %s\n", "Bucket:", orMissing(cfg.Storage.Bucket))
	fmt.Printf("    %-12s %s\n", "Region:", orMissing(cfg.Storage.Region))
	if cfg.Storage.Endpoint != "" {
		fmt.Printf("    %-12s %s\n", "Endpoint:", cfg.Storage.Endpoint)
	}
	encryption := "off"
	if cfg.Storage.EncryptionKey != "" {
		encryption = "on (AES-256-GCM)"
	}
	fmt.Printf("    %-12s %s\n", "Encryption:", encryption)

	fmt.Println()
	sessionsDir := config.ExpandHome(cfg.Pairing.SessionsDir)
	fmt.Printf("  Sessions: %s", sessionsDir)
	if _, err := os.Stat(sessionsDir); err != nil {
		fmt.Println(" (created on first run)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	if cfg.Ops.Enabled {
		fmt.Printf("  Ops endpoint: %s:%d", cfg.Ops.Host, cfg.Ops.Port)
		if _, err := opsRPC(protocol.MethodHealth, nil); err != nil {
			fmt.Println(" (not reachable; is pairgate running?)")
		} else {
			fmt.Println(" (reachable)")
		}
	} else {
		fmt.Println("  Ops endpoint: disabled")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func orMissing(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}
