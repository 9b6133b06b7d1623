// internal/commands/list.go
package flowpipe

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/flowpipe/internal/pipe"
	"github.com/spf13/cobra"
)

// listCmd represents the 'list' command group.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Group commands for listing resources",
	Long:  `The 'list' command groups subcommands that enumerate workflows and commands.`,
}

// listModelsCmd implements 'list models', which prints the Flowise workflows the
// way a chat front-end sees them.
var listModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List Flowise workflows as selectable models",
	Long:  `The 'models' subcommand discovers the chatflows and agentflows of the configured Flowise instance and prints their model ids and display names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cleanup, err := buildPipe(GetConfig(), nil)
		if err != nil {
			return err
		}
		defer cleanup()

		models, err := p.Discover(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s", pipe.ErrorMessage(err))
		}
		printModels(cmd.OutOrStdout(), p, models)
		return nil
	},
}

// commandsCmd implements 'list commands', which prints the available
// commands and subcommands in a hierarchical, indented, two-column format.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all commands and subcommands in two columns",
	Long:  `The 'commands' subcommand lists all commands and subcommands in a hierarchical, indented format, with the command path in the first column and its short description in the second column.`,
	Run: func(cmd *cobra.Command, args []string) {
		commandData := collectCommandData(rootCmd, "", "")
		filtered := make([]CommandInfo, 0, len(commandData))
		for _, data := range commandData {
			if strings.Contains(data.Path, "completion") || strings.Contains(data.Path, "help") {
				continue
			}
			filtered = append(filtered, data)
		}
		ListCommands(cmd.OutOrStdout(), filtered)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.AddCommand(listModelsCmd)
	listCmd.AddCommand(commandsCmd)
}

func printModels(out io.Writer, p *pipe.Pipe, models []pipe.Model) {
	if len(models) == 0 {
		fmt.Fprintln(out, "No workflows found.")
		return
	}
	idWidth := 0
	for _, m := range models {
		idWidth = max(idWidth, len(m.ID))
	}
	id := color.New(color.FgCyan).SprintFunc()
	kind := color.New(color.Faint).SprintFunc()
	for _, m := range models {
		wf, _ := p.Workflow(m.ID)
		label := strings.TrimSpace(strings.ToLower(wf.Type))
		if label == "" {
			label = "chatflow"
		}
		fmt.Fprintf(out, "%s%s  %s %s\n", id(m.ID), strings.Repeat(" ", idWidth-len(m.ID)), m.Name, kind("("+label+")"))
	}
}

// CommandInfo holds the path and description of a command for display.
type CommandInfo struct {
	Path        string
	Description string
}

// ListCommands prints the command tree in a two-column layout.
func ListCommands(out io.Writer, commands []CommandInfo) {
	maxPathLength := 0
	for _, data := range commands {
		if len(data.Path) > maxPathLength {
			maxPathLength = len(data.Path)
		}
	}

	fmt.Fprintln(out, "Commands and Subcommands:")
	for _, data := range commands {
		fmt.Fprintf(out, "  %s%s%s\n", data.Path, strings.Repeat(" ", maxPathLength-len(data.Path)+2), data.Description)
	}
}

// collectCommandData walks the command tree and returns a flattened slice of
// path/description pairs.
func collectCommandData(cmd *cobra.Command, currentPath string, indent string) []CommandInfo {
	fullPath := currentPath + cmd.Name()
	if currentPath != "" {
		fullPath = currentPath + " " + cmd.Name()
	}

	allData := []CommandInfo{{Path: indent + fullPath, Description: cmd.Short}}
	for _, subCmd := range cmd.Commands() {
		allData = append(allData, collectCommandData(subCmd, fullPath, indent+"  ")...)
	}
	return allData
}
