// Package cli implements the streamkit commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/assistbox/streamkit/internal/chunk"
	"github.com/assistbox/streamkit/internal/config"
	"github.com/assistbox/streamkit/internal/obs"
	"github.com/assistbox/streamkit/internal/token"
	"github.com/assistbox/streamkit/internal/transport"
)

var (
	stepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Italic(true)
	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// ChatCommand sends one message to the configured backend and renders the
// chunk stream live.
func ChatCommand(cfg *config.Config) *cobra.Command {
	var (
		logFile        string
		forceWebsearch bool
	)

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := args[0]

			meter, err := obs.NewMeterSetup(cfg.MetricsEnabled, 30*time.Second)
			if err != nil {
				return fmt.Errorf("failed to set up metrics: %w", err)
			}
			defer meter.Shutdown(cmd.Context())

			registry, err := token.NewSQLiteRegistry(cfg.StateDBPath())
			if err != nil {
				return fmt.Errorf("failed to open state database: %w", err)
			}

			credential := func(context.Context) string { return cfg.AuthToken }
			broker := token.NewBroker(cfg.BackendURL+transport.DefaultTokenPath, registry, credential, nil)

			metrics, err := obs.NewStreamMetrics()
			if err != nil {
				return fmt.Errorf("failed to create stream metrics: %w", err)
			}

			dispatcher := transport.NewDispatcher(
				transport.Config{BaseURL: cfg.BackendURL},
				transport.WithTokenBroker(broker),
				transport.WithCredential(credential),
				transport.WithMetrics(metrics),
			)

			done := make(chan struct{})
			handler := &renderHandler{out: cmd.OutOrStdout(), done: done}

			req := transport.Request{
				Message:        message,
				Provider:       cfg.Provider,
				Model:          cfg.Model,
				ForceWebsearch: forceWebsearch,
			}
			if logFile != "" {
				content, err := os.ReadFile(logFile)
				if err != nil {
					return fmt.Errorf("failed to read log file: %w", err)
				}
				req.LogContent = string(content)
				req.LogMetadata = map[string]any{
					"filename": logFile,
					"size":     len(content),
				}
			}

			handle := dispatcher.Send(cmd.Context(), req, handler)

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupt)

			select {
			case <-done:
			case <-interrupt:
				logrus.Debug("[CLI] Interrupted, closing stream")
				handle.Close()
			case <-time.After(5 * time.Minute):
				handle.Close()
				return fmt.Errorf("stream timed out")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "analyze a log file (routes to the unified agent endpoint)")
	cmd.Flags().BoolVar(&forceWebsearch, "websearch", false, "force a web search")
	return cmd
}

// renderHandler prints the chunk stream to the terminal.
type renderHandler struct {
	out  io.Writer
	done chan struct{}
}

// OnChunk implements transport.ChunkHandler.
func (h *renderHandler) OnChunk(c chunk.Chunk) {
	switch c.Kind {
	case chunk.KindTextDelta:
		fmt.Fprint(h.out, c.Delta)
	case chunk.KindTimelineStep:
		fmt.Fprintln(h.out, stepStyle.Render(fmt.Sprintf("[step] %s", c.Payload)))
	case chunk.KindReasoning:
		fmt.Fprintln(h.out, reasoningStyle.Render(fmt.Sprintf("[%s]", c.Subtype)))
	case chunk.KindMessageMetadata:
		if c.Metadata != nil && c.Metadata.HealthStatus != "" {
			fmt.Fprintln(h.out, metaStyle.Render(fmt.Sprintf("[analysis] health=%s confidence=%.2f", c.Metadata.HealthStatus, c.Metadata.Confidence)))
		}
	case chunk.KindError:
		fmt.Fprintln(h.out, errorStyle.Render("error: "+c.ErrorText))
	}
}

// OnClose implements transport.ChunkHandler.
func (h *renderHandler) OnClose() {
	close(h.done)
}
