package cli

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/assistbox/streamkit/internal/devserver"
)

// MockCommand runs the development mock backend.
func MockCommand() *cobra.Command {
	var (
		port         int
		delayMillis  int
		tokenEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a mock agent backend for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := devserver.New(devserver.Options{
				TokenEnabled: tokenEnabled,
				Delay:        time.Duration(delayMillis) * time.Millisecond,
			})
			addr := fmt.Sprintf(":%d", port)
			logrus.Infof("[DevServer] Listening on %s", addr)
			return engine.Run(addr)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8787, "listen port")
	cmd.Flags().IntVar(&delayMillis, "delay", 40, "milliseconds between frames")
	cmd.Flags().BoolVar(&tokenEnabled, "token-endpoint", true, "serve the stream-token endpoint (disable to exercise the 404 path)")
	return cmd
}
