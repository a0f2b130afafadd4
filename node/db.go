package node

import (
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/lunfardo314/unitrie/adaptors/badger_adaptor"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/ledger/state"
	"github.com/spf13/viper"
)

const DefaultStateDBName = "beedb"

var dbClosedWG sync.WaitGroup

// openStateDB opens the badger-backed state store and makes sure the ledger
// state in it is initialized: from an imported snapshot when configured,
// otherwise from the genesis parameters in the config
func (n *BeeNode) openStateDB() global.StateStore {
	dbname := viper.GetString("database.path")
	if dbname == "" {
		dbname = DefaultStateDBName
	}
	stateDB := badger_adaptor.New(badger_adaptor.MustCreateOrOpenBadgerDB(dbname))
	n.Log().Infof("opened state DB '%s'", dbname)

	if _, err := state.NewFromStore(stateDB); err != nil {
		n.initLedgerState(stateDB)
	}

	n.RepeatInBackground("badger_db_gc_loop", 5*time.Minute, func() bool {
		start := time.Now()
		err := stateDB.RunValueLogGC(0.5)
		n.Log().Infof("badger DB GC (%v): %v", time.Since(start), err)
		return true
	}, true)

	dbClosedWG.Add(1)
	go func() {
		<-n.dbClosing
		_ = stateDB.Close()
		n.Log().Infof("state database has been closed")
		dbClosedWG.Done()
	}()
	return stateDB
}

func (n *BeeNode) initLedgerState(stateDB global.StateStore) {
	if snapshotFile := viper.GetString("snapshot.file"); snapshotFile != "" {
		f, err := os.Open(snapshotFile)
		n.AssertNoError(err, "open snapshot file")
		defer func() { _ = f.Close() }()

		snapshot, err := state.ReadSnapshot(f)
		n.AssertNoError(err, "read snapshot")
		n.AssertNoError(state.ImportSnapshot(stateDB, snapshot), "import snapshot")
		n.Log().Infof("ledger state imported from snapshot '%s': milestone %s, supply %d, %d accounts",
			snapshotFile, snapshot.Index.String(), snapshot.Supply, len(snapshot.Balances))
		return
	}

	genesisBin, err := hex.DecodeString(viper.GetString("genesis.account"))
	n.AssertNoError(err, "parse genesis.account")
	genesisAccount, err := ledger.AccountIDFromBytes(genesisBin)
	n.AssertNoError(err, "parse genesis.account")
	supply := ledger.Amount(viper.GetUint64("genesis.supply"))
	n.Assertf(supply > 0, "genesis.supply must be positive")

	n.AssertNoError(state.InitGenesis(stateDB, genesisAccount, supply), "init genesis")
	n.Log().Infof("initialized genesis ledger state: supply %d on account %s", supply, genesisAccount.StringShort())
}

func (n *BeeNode) waitDBClosed() {
	dbClosedWG.Wait()
}
