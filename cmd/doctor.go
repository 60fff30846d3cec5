package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/vidcoach/internal/config"
	"github.com/nextlevelbuilder/vidcoach/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			if !runDoctor() {
				os.Exit(1)
			}
		},
	}
}

// runDoctor prints the health report and reports whether analyze can run.
func runDoctor() bool {
	fmt.Println("vidcoach doctor")
	fmt.Printf("  Version:  %s (events v%d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := config.ExpandHome(resolveConfigPath())
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return false
	}
	healthy := true

	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s\n", "Model:", cfg.Provider.Model)
	if cfg.Provider.APIKey != "" {
		fmt.Printf("    %-12s %s\n", "API key:", maskSecret(cfg.Provider.APIKey))
	} else {
		fmt.Printf("    %-12s (not configured)\n", "API key:")
		healthy = false
	}
	if cfg.Provider.RequestsPerMinute > 0 {
		fmt.Printf("    %-12s %d/min\n", "Rate limit:", cfg.Provider.RequestsPerMinute)
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	for _, bin := range []string{cfg.Tools.YtDlpPath, cfg.Tools.FFmpegPath, cfg.Tools.FFprobePath} {
		if !checkBinary(bin) {
			healthy = false
		}
	}

	fmt.Println()
	media := config.ExpandHome(cfg.Tools.MediaDir)
	fmt.Printf("  Media dir: %s", media)
	if _, err := os.Stat(media); err != nil {
		fmt.Println(" (will be created)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Printf("  Archive:  %s", cfg.Store.Driver)
	if cfg.ArchiveEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := openStore(ctx, cfg)
		cancel()
		if err != nil {
			fmt.Printf(" (ERROR: %s)\n", err)
			healthy = false
		} else {
			st.Close()
			fmt.Println(" (OK)")
		}
	} else {
		fmt.Println(" (disabled)")
	}

	fmt.Printf("  Telemetry: ")
	switch {
	case !cfg.Telemetry.Enabled:
		fmt.Println("disabled")
	case !otelBuilt:
		fmt.Println("enabled in config, but this binary was built without -tags otel")
	default:
		fmt.Printf("%s (%s)\n", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	}

	fmt.Println()
	if healthy {
		fmt.Println("Doctor check complete.")
	} else {
		fmt.Println("Doctor found problems; `vidcoach analyze` will not work until they are fixed.")
	}
	return healthy
}

func checkBinary(name string) bool {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
		return false
	}
	fmt.Printf("    %-12s %s\n", name+":", path)
	return true
}
