package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corali-systems/docsearchai/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docsearchd",
		Short: "Docsearch daemon and CLI",
		Long:  "Docsearch daemon for running the search API server and ingesting PDF documents",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.IngestCmd())
	rootCmd.AddCommand(cli.SearchCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
