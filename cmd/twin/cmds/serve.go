package cmds

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/twin/pkg/httpserver"
	"github.com/go-go-golems/twin/pkg/webchat"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser chat widget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			widget := webchat.NewServer(a.newClient(), a.settings.Widget)
			defer widget.Close()

			log.Info().Str("api_url", a.settings.APIURL).Msg("chat widget talks to service")
			return httpserver.Run(ctx, httpserver.New(addr, widget.Handler()), nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	return cmd
}
