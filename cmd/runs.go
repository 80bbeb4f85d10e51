package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/jetstreamer/internal/store"
	"github.com/spf13/cobra"
)

var resetYes bool

var errNoDatabase = errors.New("no database configured (use --db or set POSTGRES_HOST)")

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recording runs mirrored to the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if DB == nil {
			return errNoDatabase
		}
		runs, err := DB.ListRuns(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

var resetRunsCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all run and frame records from the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if DB == nil {
			return errNoDatabase
		}
		if !resetYes && !confirm(bufio.NewReader(os.Stdin), os.Stdout, "⚠️  Are you sure you want to DROP all run and frame records?") {
			return nil
		}
		if err := DB.Reset(context.WithoutCancel(cmd.Context())); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
		fmt.Fprintln(os.Stderr, "🗑️  Database reset. Tables are recreated on the next connection.")
		return nil
	},
}

func init() {
	resetRunsCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	runsCmd.AddCommand(resetRunsCmd)
	rootCmd.AddCommand(runsCmd)
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tBASE FILENAME\tFRAMES\tSTARTED")
	fmt.Fprintln(w, "--\t-------------\t------\t-------")

	for _, r := range runs {
		base := r.BaseFilename
		if base == "" {
			base = "(none)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, base, r.Frames, r.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
