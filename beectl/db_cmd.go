package main

import (
	"fmt"

	"github.com/lunfardo314/unitrie/adaptors/badger_adaptor"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/ledger/state"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "ledger database access",
}

var dbInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "print ledger state summary and check supply conservation",
	Run:   runDBInfoCommand,
}

func initDBCmd() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInfoCmd)
}

func mustOpenStateDB() global.StateStore {
	dbname := viper.GetString("database.path")
	if dbname == "" {
		dbname = "beedb"
	}
	db, err := badger_adaptor.OpenBadgerDB(dbname)
	cobra.CheckErr(err)
	return badger_adaptor.New(db)
}

func runDBInfoCommand(_ *cobra.Command, _ []string) {
	stateDB := mustOpenStateDB()
	ledgerState, err := state.NewFromStore(stateDB)
	cobra.CheckErr(err)

	p := message.NewPrinter(language.English)
	numAccounts := 0
	ledgerState.ForEachBalance(func(_ ledger.AccountID, _ ledger.Amount) bool {
		numAccounts++
		return true
	})
	_, _ = p.Printf("latest applied milestone: %s\n", ledgerState.LatestAppliedMilestone().String())
	_, _ = p.Printf("total supply:             %d\n", uint64(ledgerState.Supply()))
	_, _ = p.Printf("accounts with funds:      %d\n", numAccounts)

	if err = ledgerState.CheckSupply(); err != nil {
		cobra.CheckErr(err)
	}
	fmt.Printf("supply conservation check passed\n")
}
