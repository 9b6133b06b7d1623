// internal/commands/chat.go
package flowpipe

import (
	"github.com/mwiater/flowpipe/cli"
	"github.com/mwiater/flowpipe/internal/chat"
	"github.com/spf13/cobra"
)

// startGUI is a function alias to cli.StartGUI for starting the chat interface.
var startGUI chat.GUI = cli.StartGUI

// chatCmd represents the 'chat' command, which starts an interactive chat session.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a chat session",
	Long:  `The 'chat' command lets you pick a Flowise workflow and chat with it in the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat.Run(cmd.Context(), GetConfig(), newProvider, startGUI)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
