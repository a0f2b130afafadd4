package state

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/lunfardo314/unitrie/common"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/stretchr/testify/require"
)

const testSupply = ledger.Amount(1_000_000)

func initTestState(t *testing.T) (*LedgerState, ledger.AccountID) {
	store := common.NewInMemoryKVStore()
	genesisAccount := ledger.RandomAccountID()
	err := InitGenesis(store, genesisAccount, testSupply)
	require.NoError(t, err)
	ls, err := NewFromStore(store)
	require.NoError(t, err)
	return ls, genesisAccount
}

func TestGenesis(t *testing.T) {
	t.Run("init", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		require.EqualValues(t, 0, ls.LatestAppliedMilestone())
		require.EqualValues(t, testSupply, ls.Supply())
		require.EqualValues(t, testSupply, ls.Balance(genesisAccount))
		require.EqualValues(t, 0, ls.Balance(ledger.RandomAccountID()))
		require.NoError(t, ls.CheckSupply())
	})
	t.Run("not initialized", func(t *testing.T) {
		_, err := NewFromStore(common.NewInMemoryKVStore())
		require.ErrorIs(t, err, ErrNotInitialized)
	})
}

func TestDraft(t *testing.T) {
	t.Run("transfer", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		target := ledger.RandomAccountID()
		tx := &ledger.Transaction{
			Sender:  genesisAccount,
			Outputs: []ledger.Output{{Account: target, Amount: 1337}},
		}
		d := ls.NewDraft()
		require.NoError(t, d.Transfer(tx))
		require.EqualValues(t, testSupply-1337, d.Balance(genesisAccount))
		require.EqualValues(t, 1337, d.Balance(target))
		// committed state untouched until Commit
		require.EqualValues(t, testSupply, ls.Balance(genesisAccount))
		require.EqualValues(t, 0, ls.Balance(target))
	})
	t.Run("insufficient funds", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		poor := ledger.RandomAccountID()
		tx := &ledger.Transaction{
			Sender:  poor,
			Outputs: []ledger.Output{{Account: genesisAccount, Amount: 1}},
		}
		d := ls.NewDraft()
		err := d.Transfer(tx)
		require.ErrorIs(t, err, ErrInsufficientFunds)
		require.EqualValues(t, 0, d.NumChangedAccounts())
	})
	t.Run("self transfer", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		tx := &ledger.Transaction{
			Sender:  genesisAccount,
			Outputs: []ledger.Output{{Account: genesisAccount, Amount: 500}},
		}
		d := ls.NewDraft()
		require.NoError(t, d.Transfer(tx))
		require.EqualValues(t, testSupply, d.Balance(genesisAccount))
	})
	t.Run("consumed inputs", func(t *testing.T) {
		ls, _ := initTestState(t)
		var in ledger.InputID
		copy(in[:], ledger.RandomVertexID().Bytes())

		d := ls.NewDraft()
		require.False(t, d.InputConsumed(in))
		d.MarkConsumed(in)
		require.True(t, d.InputConsumed(in))

		require.NoError(t, ls.Commit(d, 1, nil))
		// visible across drafts once committed
		require.True(t, ls.NewDraft().InputConsumed(in))
	})
}

func TestCommit(t *testing.T) {
	t.Run("advance watermark", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		target := ledger.RandomAccountID()
		d := ls.NewDraft()
		require.NoError(t, d.Transfer(&ledger.Transaction{
			Sender:  genesisAccount,
			Outputs: []ledger.Output{{Account: target, Amount: 42}},
		}))
		require.NoError(t, ls.Commit(d, 1, nil))
		require.EqualValues(t, 1, ls.LatestAppliedMilestone())
		require.EqualValues(t, testSupply-42, ls.Balance(genesisAccount))
		require.EqualValues(t, 42, ls.Balance(target))
		require.NoError(t, ls.CheckSupply())
	})
	t.Run("wrong index", func(t *testing.T) {
		ls, _ := initTestState(t)
		err := ls.Commit(ls.NewDraft(), 2, nil)
		require.ErrorIs(t, err, ErrWrongMilestone)
		require.EqualValues(t, 0, ls.LatestAppliedMilestone())

		err = ls.Commit(ls.NewDraft(), 0, nil)
		require.ErrorIs(t, err, ErrWrongMilestone)
	})
	t.Run("extra writes in same batch", func(t *testing.T) {
		store := common.NewInMemoryKVStore()
		genesisAccount := ledger.RandomAccountID()
		require.NoError(t, InitGenesis(store, genesisAccount, testSupply))
		ls, err := NewFromStore(store)
		require.NoError(t, err)

		key := []byte("vtest")
		require.NoError(t, ls.Commit(ls.NewDraft(), 1, func(w common.KVWriter) {
			w.Set(key, []byte{0xff})
		}))
		require.True(t, store.Has(key))
	})
	t.Run("sequence", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		target := ledger.RandomAccountID()
		for idx := ledger.MilestoneIndex(1); idx <= 10; idx++ {
			d := ls.NewDraft()
			require.NoError(t, d.Transfer(&ledger.Transaction{
				Sender:  genesisAccount,
				Outputs: []ledger.Output{{Account: target, Amount: 10}},
			}))
			require.NoError(t, ls.Commit(d, idx, nil))
		}
		require.EqualValues(t, 10, ls.LatestAppliedMilestone())
		require.EqualValues(t, 100, ls.Balance(target))
		require.NoError(t, ls.CheckSupply())
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		d := ls.NewDraft()
		require.NoError(t, d.Transfer(&ledger.Transaction{
			Sender:  genesisAccount,
			Outputs: []ledger.Output{{Account: ledger.RandomAccountID(), Amount: 100}},
		}))
		require.NoError(t, ls.Commit(d, 1, nil))

		snap := ls.ExportSnapshot()
		require.EqualValues(t, 1, snap.Index)
		require.EqualValues(t, testSupply, snap.Supply)
		require.Len(t, snap.Balances, 2)

		var buf bytes.Buffer
		require.NoError(t, snap.Write(&buf))
		back, err := ReadSnapshot(&buf)
		require.NoError(t, err)
		require.EqualValues(t, snap, back)
	})
	t.Run("import", func(t *testing.T) {
		ls, genesisAccount := initTestState(t)
		target := ledger.RandomAccountID()
		d := ls.NewDraft()
		require.NoError(t, d.Transfer(&ledger.Transaction{
			Sender:  genesisAccount,
			Outputs: []ledger.Output{{Account: target, Amount: 333}},
		}))
		require.NoError(t, ls.Commit(d, 1, nil))

		store2 := common.NewInMemoryKVStore()
		require.NoError(t, ImportSnapshot(store2, ls.ExportSnapshot()))
		ls2, err := NewFromStore(store2)
		require.NoError(t, err)
		require.EqualValues(t, 1, ls2.LatestAppliedMilestone())
		require.EqualValues(t, 333, ls2.Balance(target))
		require.NoError(t, ls2.CheckSupply())
	})
	t.Run("hostile record count", func(t *testing.T) {
		// header declares 4 billion records but carries none: reading must
		// fail on the missing data instead of allocating for the claim
		hdr := binary.BigEndian.AppendUint32(nil, 1)
		hdr = binary.BigEndian.AppendUint64(hdr, uint64(testSupply))
		hdr = binary.BigEndian.AppendUint32(hdr, math.MaxUint32)

		_, err := ReadSnapshot(bytes.NewReader(hdr))
		require.ErrorIs(t, err, ErrMalformedSnapshot)
	})
	t.Run("truncated records", func(t *testing.T) {
		ls, _ := initTestState(t)
		snap := ls.ExportSnapshot()
		var buf bytes.Buffer
		require.NoError(t, snap.Write(&buf))

		_, err := ReadSnapshot(bytes.NewReader(buf.Bytes()[:buf.Len()-1]))
		require.ErrorIs(t, err, ErrMalformedSnapshot)
	})
	t.Run("corrupted supply", func(t *testing.T) {
		ls, _ := initTestState(t)
		snap := ls.ExportSnapshot()
		snap.Supply++
		var buf bytes.Buffer
		require.NoError(t, snap.Write(&buf))
		_, err := ReadSnapshot(&buf)
		require.ErrorIs(t, err, ErrMalformedSnapshot)
	})
}
