// internal/commands/ask.go
package flowpipe

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/flowpipe/internal/pipe"
	"github.com/spf13/cobra"
)

// askCmd implements 'ask', a one-shot chat turn against a single workflow.
var askCmd = &cobra.Command{
	Use:   "ask <workflow> <question...>",
	Short: "Ask a Flowise workflow a single question",
	Long: `The 'ask' command sends one question to a workflow and prints the answer to stdout.
Progress updates go to stderr. Pass the same --chat-id on later calls to continue a conversation.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		noStream, _ := cmd.Flags().GetBool("no-stream")
		quiet, _ := cmd.Flags().GetBool("quiet")
		chatID, _ := cmd.Flags().GetString("chat-id")

		p, cleanup, err := buildPipe(GetConfig(), nil)
		if err != nil {
			return err
		}
		defer cleanup()

		req := pipe.Request{
			Model:    args[0],
			Messages: []pipe.Message{{Role: "user", Content: pipe.Text(strings.Join(args[1:], " "))}},
			ChatID:   chatID,
			Stream:   !noStream,
		}

		errOut := cmd.ErrOrStderr()
		levels := map[pipe.Level]*color.Color{
			pipe.LevelInfo:    color.New(color.FgCyan),
			pipe.LevelWarning: color.New(color.FgYellow),
			pipe.LevelError:   color.New(color.FgRed),
		}
		emitter := pipe.EmitterFunc(func(_ context.Context, status pipe.Status) error {
			if quiet {
				return nil
			}
			c, ok := levels[status.Level]
			if !ok {
				c = levels[pipe.LevelInfo]
			}
			_, err := c.Fprintln(errOut, status.Description)
			return err
		})

		out := cmd.OutOrStdout()
		for chunk := range p.Run(cmd.Context(), req, emitter) {
			if _, err := fmt.Fprint(out, chunk); err != nil {
				return err
			}
		}
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().Bool("no-stream", false, "wait for the whole answer instead of streaming")
	askCmd.Flags().Bool("quiet", false, "do not print status updates")
	askCmd.Flags().String("chat-id", "", "conversation id used to derive the Flowise session")
}
