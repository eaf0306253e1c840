package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/codem/internal/config"
	"github.com/zulandar/codem/internal/store"
	"golang.org/x/term"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Document store management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the document store",
		Long:  "Creates the configured store with empty projects, runs and files collections. Existing data is left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	// Reading creates the medium on first access.
	doc, err := st.Read(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Store %s ready at %s\n", cfg.Store.Driver, storeLocation(cfg.Store))
	fmt.Fprintf(out, "%d projects, %d runs, %d files (version %d)\n",
		len(doc.Projects), len(doc.Runs), len(doc.Files), doc.Version)
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all projects, runs and files",
		Long: `Removes the document store. The next command that touches the store
re-creates it empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	where := storeLocation(cfg.Store)

	if !skipConfirm {
		if !stdinIsTerminal(cmd) {
			return fmt.Errorf("refusing to reset %s without a terminal; pass --yes", where)
		}
		if !confirmReset(cmd, where) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := st.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Store %s at %s reset.\n", cfg.Store.Driver, where)
	return nil
}

// stdinIsTerminal reports whether the command reads from an interactive
// terminal. Input injected with SetIn counts as interactive.
func stdinIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}

func confirmReset(cmd *cobra.Command, where string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all projects, runs and files in %s.\n", where)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}

func storeLocation(cfg config.StoreConfig) string {
	if cfg.Driver == config.DriverMySQL {
		return fmt.Sprintf("%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
	}
	return cfg.Path
}
