package cmds

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/twin/pkg/chatclient"
	"github.com/go-go-golems/twin/pkg/config"
	"github.com/go-go-golems/twin/pkg/logging"
)

var version = "dev"

// annotationScreen marks commands that take over the terminal; their logs
// go to a file unless --log-file says otherwise.
const annotationScreen = "twin/screen"

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	settings  *config.Settings
	logCloser io.Closer
}

func (a *app) newClient() *chatclient.Client {
	return chatclient.New(a.settings.APIURL,
		chatclient.WithTimeout(a.settings.RequestTimeout),
		chatclient.WithUserAgent("twin/"+version),
	)
}

func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "twin",
		Short:         "twin is a chat client for a personal AI twin service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv()
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			settings, err := config.Load(v)
			if err != nil {
				return err
			}
			if settings.Log.File == "" && takesOverScreen(cmd) {
				settings.Log.File = filepath.Join(os.TempDir(), "twin.log")
			}
			closer, err := logging.Init(settings.Log)
			if err != nil {
				return errors.Wrap(err, "failed to initialize logging")
			}
			a.settings = settings
			a.logCloser = closer
			log.Debug().Str("api_url", settings.APIURL).Str("command", cmd.Name()).Msg("settings loaded")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newChatCommand(a),
		newSendCommand(a),
		newServeCommand(a),
		newMockServerCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	rootCmd := NewRootCommand()
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func takesOverScreen(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationScreen] != "true" {
		return false
	}
	if line, _ := cmd.Flags().GetBool("line"); line {
		return false
	}
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
