package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/assistbox/streamkit/internal/cli"
	"github.com/assistbox/streamkit/internal/config"
	"github.com/assistbox/streamkit/internal/obs"
)

var rootCmd = &cobra.Command{
	Use:   "streamkit",
	Short: "Streamkit - streaming chat transport for the support assistant",
	Long: `Streamkit is the streaming chat transport client for the support-assistant
backend. It opens an incrementally-delivered response channel, normalizes the
upstream event stream into canonical message chunks, and renders them live.`,
}

// Build information variables
var (
	// Set by compiler via -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"

	configDir string
)

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: ~/.streamkit)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Streamkit CLI\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Git Commit: %s\n", gitCommit)
			fmt.Printf("Build Time: %s\n", buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	var opts []config.Option
	if configDir != "" {
		opts = append(opts, config.WithConfigDir(configDir))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		obs.SetupLogging(verbose, cfg.LogFile)
	}

	rootCmd.AddCommand(cli.ChatCommand(cfg))
	rootCmd.AddCommand(cli.MockCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
