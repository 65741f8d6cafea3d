package cmds

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/twin/pkg/echoserver"
	"github.com/go-go-golems/twin/pkg/httpserver"
)

func newMockServerCommand(a *app) *cobra.Command {
	var (
		addr     string
		delay    time.Duration
		failEach int
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local chat service that echoes messages",
		Long: "Serves POST /chat with the same contract as the real service. " +
			"--delay slows every reply; --fail-every makes every Nth reply a 500.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			h := echoserver.NewHandler(echoserver.WithResponder(mockResponder(delay, failEach)))
			return httpserver.Run(ctx, httpserver.New(addr, h.Mux()), nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "HTTP listen address")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Wait this long before every reply")
	cmd.Flags().IntVar(&failEach, "fail-every", 0, "Fail every Nth message of a session (0 = never)")
	return cmd
}

func mockResponder(delay time.Duration, failEach int) echoserver.Responder {
	return func(ctx context.Context, sessionID string, turn int, message string) (string, error) {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		if failEach > 0 && turn%failEach == 0 {
			return "", errors.Errorf("simulated failure on turn %d", turn)
		}
		return echoserver.Echo(ctx, sessionID, turn, message)
	}
}
