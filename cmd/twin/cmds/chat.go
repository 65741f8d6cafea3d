package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/twin/pkg/config"
	"github.com/go-go-golems/twin/pkg/conversation"
	"github.com/go-go-golems/twin/pkg/ui"
)

func newChatCommand(a *app) *cobra.Command {
	var (
		line  bool
		plain bool
	)
	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Chat with the twin in the terminal",
		Long:        "Opens the full-screen chat widget. Without a terminal, or with --line, messages are read one per line from stdin.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationScreen: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			store := conversation.NewStore(a.newClient())
			if takesOverScreen(cmd) {
				return ui.Run(ctx, store, ui.RunOptions{Widget: a.settings.Widget, PlainText: plain})
			}

			var reader lineReader = newScanReader(cmd.InOrStdin(), cmd.OutOrStdout())
			if !line && isTerminal(os.Stdin) {
				reader = newPromptReader(os.Stdin, cmd.OutOrStdout())
			}
			return runLineChat(ctx, store, reader, cmd.OutOrStdout(), a.settings.Widget)
		},
	}
	cmd.Flags().BoolVar(&line, "line", false, "Use the line-based chat even on a terminal")
	cmd.Flags().BoolVar(&plain, "plain", false, "Show replies as plain text instead of markdown")
	return cmd
}

// lineReader returns one line of user input. io.EOF ends the chat.
type lineReader interface {
	ReadLine(prompt string) (string, error)
}

type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newScanReader(r io.Reader, out io.Writer) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(r), out: out}
}

func (s *scanReader) ReadLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(s.out, prompt)
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", errors.Wrap(err, "failed to read input")
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

type promptReader struct {
	ui *input.UI
}

func newPromptReader(r io.Reader, w io.Writer) *promptReader {
	return &promptReader{ui: &input.UI{Reader: r, Writer: w}}
}

func (p *promptReader) ReadLine(prompt string) (string, error) {
	answer, err := p.ui.Ask(strings.TrimSpace(prompt), &input.Options{
		HideOrder: true,
		Required:  false,
		Loop:      false,
	})
	if errors.Is(err, input.ErrInterrupted) {
		return "", io.EOF
	}
	return answer, err
}

// runLineChat drives store from r until EOF or /quit, printing each reply.
func runLineChat(ctx context.Context, store *conversation.Store, r lineReader, out io.Writer, widget config.WidgetSettings) error {
	name := widget.DisplayTitle()
	_, _ = fmt.Fprintf(out, "%s\n%s\n\n", name, widget.Greeting())

	for {
		text, err := r.ReadLine("you> ")
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.TrimSpace(text) {
		case "/quit", "/exit":
			return nil
		}

		ex, err := store.Submit(ctx, text)
		if errors.Is(err, conversation.ErrEmptyMessage) {
			continue
		}
		if err != nil {
			return err
		}
		if err := ex.Wait(ctx); err != nil {
			// interrupted while waiting for the reply
			_, _ = fmt.Fprintln(out)
			return nil
		}
		if ex.Err() != nil {
			log.Debug().Err(ex.Err()).Msg("exchange failed")
		}

		last, _ := store.Snapshot().LastAssistant()
		_, _ = fmt.Fprintf(out, "%s> %s\n\n", name, last.Content)
	}
}
