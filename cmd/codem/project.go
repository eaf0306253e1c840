package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/codem/internal/models"
	"github.com/zulandar/codem/internal/project"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectShowCmd())
	cmd.AddCommand(newProjectAnalyzeCmd())
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	var (
		configPath string
		opts       project.CreateOpts
	)

	cmd := &cobra.Command{
		Use:   "create <repo-url>",
		Short: "Register a repository",
		Long:  "Registers a repository as a project. The name defaults to the last path segment of the URL.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.RepoURL = args[0]
			return runProjectCreate(cmd, configPath, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.SourceLanguage, "source", "", "source language code")
	cmd.Flags().StringVar(&opts.TargetLanguage, "target", "", "target language code")
	return cmd
}

func runProjectCreate(cmd *cobra.Command, configPath string, opts project.CreateOpts) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	p, err := a.projects.Create(context.Background(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", p.ID, p.Name)
	return nil
}

func newProjectListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectList(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runProjectList(cmd *cobra.Command, configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	projects, err := a.projects.List(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tLANGS\tREPO")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, truncate(p.Name, 30), p.Status, languagePair(p.SourceLanguage, p.TargetLanguage), truncate(p.RepoURL, 50))
	}
	w.Flush()
	return nil
}

func newProjectShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show project details",
		Long:  "Displays a project, its latest analysis and its runs.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectShow(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runProjectShow(cmd *cobra.Command, configPath, id string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	p, runs, err := a.projects.Get(context.Background(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project: %s\n", p.ID)
	fmt.Fprintf(out, "Name:    %s\n", p.Name)
	fmt.Fprintf(out, "Repo:    %s\n", p.RepoURL)
	fmt.Fprintf(out, "Status:  %s\n", p.Status)
	fmt.Fprintf(out, "Langs:   %s\n", languagePair(p.SourceLanguage, p.TargetLanguage))
	fmt.Fprintf(out, "Created: %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	printAnalysis(cmd, p.Analysis)

	fmt.Fprintf(out, "\nRuns (%d):\n", len(runs))
	if len(runs) > 0 {
		printRuns(cmd, runs)
	}
	return nil
}

func printAnalysis(cmd *cobra.Command, an *models.Analysis) {
	out := cmd.OutOrStdout()
	if an == nil {
		fmt.Fprintln(out, "\nNot analyzed yet.")
		return
	}
	fmt.Fprintf(out, "\nAnalysis (%s):\n", an.LastAnalyzedAt.Format("2006-01-02 15:04:05"))
	for _, l := range an.Languages {
		fmt.Fprintf(out, "  %-12s %3d%%\n", l.Name, l.Percent)
	}
	for _, d := range an.Dependencies {
		fmt.Fprintf(out, "  dep:  %s\n", d)
	}
	for _, w := range an.Warnings {
		fmt.Fprintf(out, "  warn: %s\n", w)
	}
}

func newProjectAnalyzeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "analyze <id>",
		Short: "Analyze a project's repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectAnalyze(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runProjectAnalyze(cmd *cobra.Command, configPath, id string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	p, err := a.projects.Analyze(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Project %s is %s\n", p.ID, p.Status)
	printAnalysis(cmd, p.Analysis)
	return nil
}
