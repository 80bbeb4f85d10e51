package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/jetstreamer/internal/inference"
	"github.com/spf13/cobra"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the built-in classification and detection networks",
	Args:  cobra.NoArgs,
	// The listing needs neither a logger nor a database.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		listNetworks(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(networksCmd)
}

func listNetworks(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tINPUT\tMODEL")
	fmt.Fprintln(w, "----\t----\t-----\t-----")

	for _, name := range inference.Names() {
		n := inference.Registry[name]
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\n", n.Name, n.Kind, n.InputWidth, n.InputHeight, n.Model)
	}
	w.Flush()
}
