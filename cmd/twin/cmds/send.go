package cmds

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/twin/pkg/chatclient"
)

func newSendCommand(a *app) *cobra.Command {
	var (
		sessionID    string
		printSession bool
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send one message and print the reply",
		Long: "Sends the arguments, joined by spaces, as one message. Pass --session-id " +
			"to continue a conversation; --print-session shows the id to use next time.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			if strings.TrimSpace(message) == "" {
				return errors.New("message must not be blank")
			}

			resp, err := a.newClient().Chat(cmd.Context(), chatclient.ChatRequest{
				Message:   message,
				SessionID: sessionID,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			_, _ = fmt.Fprintln(out, resp.Response)
			if printSession {
				id := resp.SessionID
				if id == "" {
					id = sessionID
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Continue the conversation with this session id")
	cmd.Flags().BoolVar(&printSession, "print-session", false, "Print the session id to stderr")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw service response as JSON")
	return cmd
}
