package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/codem/internal/models"
	"github.com/zulandar/codem/internal/run"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage migration runs",
	}

	cmd.AddCommand(newRunCreateCmd())
	cmd.AddCommand(newRunListCmd())
	cmd.AddCommand(newRunShowCmd())
	return cmd
}

func newRunCreateCmd() *cobra.Command {
	var (
		configPath string
		scope      string
	)

	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Run the migration for a project",
		Long: `Calls the migration backend for the project and records the run.
If the backend cannot be reached the run is recorded with a single example file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCreate(cmd, configPath, args[0], scope)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&scope, "scope", run.DefaultScope, "migration scope")
	return cmd
}

func runRunCreate(cmd *cobra.Command, configPath, projectID, scope string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	r, err := a.runs.CreateRun(context.Background(), projectID, scope)
	if err != nil {
		return err
	}
	s := r.Stats
	fmt.Fprintf(cmd.OutOrStdout(), "Created run %s: %d files (%d migrated, %d pending, %d manual)\n",
		r.ID, s.TotalFiles, s.Migrated, s.Pending, s.Manual)
	return nil
}

func newRunListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunList(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runRunList(cmd *cobra.Command, configPath, projectID string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	runs, err := a.runs.ListRuns(context.Background(), projectID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
		return nil
	}
	printRuns(cmd, runs)
	return nil
}

func printRuns(cmd *cobra.Command, runs []models.Run) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCOPE\tSTATUS\tFILES\tMIGRATED\tPENDING\tMANUAL\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Scope, r.Status, r.Stats.TotalFiles, r.Stats.Migrated, r.Stats.Pending, r.Stats.Manual,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func newRunShowCmd() *cobra.Command {
	var (
		configPath string
		showCode   bool
	)

	cmd := &cobra.Command{
		Use:   "show <project-id> <run-id>",
		Short: "Show a run and its files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunShow(cmd, configPath, args[0], args[1], showCode)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&showCode, "code", false, "print original and converted code")
	return cmd
}

func runRunShow(cmd *cobra.Command, configPath, projectID, runID string, showCode bool) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	r, files, err := a.runs.GetRun(context.Background(), projectID, runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:     %s\n", r.ID)
	fmt.Fprintf(out, "Project: %s\n", r.ProjectID)
	fmt.Fprintf(out, "Scope:   %s\n", r.Scope)
	fmt.Fprintf(out, "Status:  %s\n", r.Status)
	fmt.Fprintf(out, "Langs:   %s\n", languagePair(r.SourceLanguage, r.TargetLanguage))
	fmt.Fprintf(out, "Stats:   %d files, %d migrated, %d pending, %d manual\n",
		r.Stats.TotalFiles, r.Stats.Migrated, r.Stats.Pending, r.Stats.Manual)

	fmt.Fprintf(out, "\nFiles (%d):\n", len(files))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPATH\tSTATUS\tNOTES")
	for _, f := range files {
		notes := f.Notes
		if notes == "" {
			notes = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, truncate(f.Path, 60), f.Status, truncate(notes, 40))
	}
	w.Flush()

	if showCode {
		for _, f := range files {
			fmt.Fprintf(out, "\n=== %s (original) ===\n%s\n", f.Path, f.OriginalCode)
			fmt.Fprintf(out, "=== %s (converted) ===\n%s\n", f.Path, f.ConvertedCode)
		}
	}
	return nil
}
