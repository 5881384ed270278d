// Command ledgerctl is the operator CLI for the entitlement ledger. It talks
// to the store directly and needs only the store settings from the
// environment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitWithError(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect and correct entitlement ledger state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		grantCmd(),
		revokeProCmd(),
		showCmd(),
		claimCmd(),
		reconcileCmd(),
		migrateCmd(),
	)
	return root
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
