package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/codem/internal/copilot"
)

func newCopilotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copilot",
		Short: "Ask questions about migrated files",
	}

	cmd.AddCommand(newCopilotAskCmd())
	return cmd
}

func newCopilotAskCmd() *cobra.Command {
	var (
		configPath string
		req        copilot.Request
	)

	cmd := &cobra.Command{
		Use:   "ask <project-id> <run-id> <file-id> <question...>",
		Short: "Ask the copilot about one file of a run",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ProjectID, req.RunID, req.FileID = args[0], args[1], args[2]
			req.Question = strings.Join(args[3:], " ")
			return runCopilotAsk(cmd, configPath, req)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runCopilotAsk(cmd *cobra.Command, configPath string, req copilot.Request) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	ans, err := a.copilot.Ask(context.Background(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ans.Answer)
	if len(ans.SuggestedTests) > 0 {
		fmt.Fprintln(out, "\nSuggested tests:")
		for _, t := range ans.SuggestedTests {
			fmt.Fprintf(out, "  - %s\n", t)
		}
	}
	if len(ans.Risks) > 0 {
		fmt.Fprintln(out, "\nRisks:")
		for _, r := range ans.Risks {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return nil
}
