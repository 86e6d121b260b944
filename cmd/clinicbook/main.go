package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd(openDesk).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open deskOpener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clinicbook",
		Short:         "Clinic appointment booking service and front-desk tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	for _, cmd := range deskCmds(open) {
		rootCmd.AddCommand(cmd)
	}
	return rootCmd
}
