package main

import (
	"fmt"
	"os"

	"github.com/prateekvishnu/bee/ledger/state"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "export and import ledger state snapshots",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "export the committed ledger state into a snapshot file",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotExportCommand,
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "initialize the ledger state database from a snapshot file",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotImportCommand,
}

func initSnapshotCmd() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotImportCmd)
}

func runSnapshotExportCommand(_ *cobra.Command, args []string) {
	stateDB := mustOpenStateDB()
	ledgerState, err := state.NewFromStore(stateDB)
	cobra.CheckErr(err)

	snapshot := ledgerState.ExportSnapshot()
	f, err := os.Create(args[0])
	cobra.CheckErr(err)
	defer func() { _ = f.Close() }()

	cobra.CheckErr(snapshot.Write(f))
	cobra.CheckErr(snapshot.Header("bee ledger state snapshot").SaveTo(args[0] + ".yaml"))

	fmt.Printf("exported ledger state at milestone %s: %d accounts, supply %d\n",
		snapshot.Index.String(), len(snapshot.Balances), snapshot.Supply)
	fmt.Printf("snapshot written to '%s', header to '%s.yaml'\n", args[0], args[0])
}

func runSnapshotImportCommand(_ *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	cobra.CheckErr(err)
	defer func() { _ = f.Close() }()

	snapshot, err := state.ReadSnapshot(f)
	cobra.CheckErr(err)

	stateDB := mustOpenStateDB()
	if _, err = state.NewFromStore(stateDB); err == nil {
		cobra.CheckErr("ledger state database is already initialized, refusing to overwrite")
	}
	cobra.CheckErr(state.ImportSnapshot(stateDB, snapshot))

	fmt.Printf("imported ledger state at milestone %s: %d accounts, supply %d\n",
		snapshot.Index.String(), len(snapshot.Balances), snapshot.Supply)
}
