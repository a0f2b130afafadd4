// Package state implements the authoritative ledger state: the account balance
// mapping plus the latest-applied-milestone watermark, backed by the key-value
// store. All mutations go through a draft which is committed atomically,
// one milestone at a time, by a single writer
package state

import (
	"encoding/binary"
	"sync"

	"github.com/lunfardo314/unitrie/common"
	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/util"
	"golang.org/x/exp/maps"
)

const (
	PartitionAccounts       = byte('a')
	PartitionConsumedInputs = byte('c')
	PartitionMilestoneIndex = byte('i')
	PartitionSupply         = byte('s')
)

var (
	ErrNotInitialized     = errors.New("ledger state not initialized in the store")
	ErrWrongMilestone     = errors.New("wrong milestone index")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSupplyNotConserved = errors.New("supply not conserved")
)

type (
	LedgerState struct {
		mutex         sync.RWMutex
		store         global.StateStore
		latestApplied ledger.MilestoneIndex
		supply        ledger.Amount
	}

	// Draft accumulates balance changes of one milestone before the atomic commit.
	// Reads fall through to the committed state
	Draft struct {
		l        *LedgerState
		changed  map[ledger.AccountID]ledger.Amount
		consumed map[ledger.InputID]struct{}
	}
)

func accountKey(a ledger.AccountID) []byte {
	return common.Concat(PartitionAccounts, a[:])
}

func consumedInputKey(in ledger.InputID) []byte {
	return common.Concat(PartitionConsumedInputs, in[:])
}

// InitGenesis writes the origin ledger state: the whole supply on the genesis
// account, watermark at 0
func InitGenesis(store global.StateStore, genesisAccount ledger.AccountID, supply ledger.Amount) error {
	batch := store.BatchedWriter()
	batch.Set(accountKey(genesisAccount), binary.BigEndian.AppendUint64(nil, uint64(supply)))
	batch.Set([]byte{PartitionMilestoneIndex}, binary.BigEndian.AppendUint32(nil, 0))
	batch.Set([]byte{PartitionSupply}, binary.BigEndian.AppendUint64(nil, uint64(supply)))
	return batch.Commit()
}

// NewFromStore opens the ledger state over an initialized store
func NewFromStore(store global.StateStore) (*LedgerState, error) {
	idxBin := store.Get([]byte{PartitionMilestoneIndex})
	supplyBin := store.Get([]byte{PartitionSupply})
	if len(idxBin) != 4 || len(supplyBin) != 8 {
		return nil, ErrNotInitialized
	}
	return &LedgerState{
		store:         store,
		latestApplied: ledger.MilestoneIndex(binary.BigEndian.Uint32(idxBin)),
		supply:        ledger.Amount(binary.BigEndian.Uint64(supplyBin)),
	}, nil
}

func (l *LedgerState) LatestAppliedMilestone() ledger.MilestoneIndex {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.latestApplied
}

func (l *LedgerState) Supply() ledger.Amount {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.supply
}

// Balance committed balance of the account, zero for unknown accounts
func (l *LedgerState) Balance(a ledger.AccountID) ledger.Amount {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.balanceNoLock(a)
}

func (l *LedgerState) balanceNoLock(a ledger.AccountID) ledger.Amount {
	bin := l.store.Get(accountKey(a))
	if len(bin) == 0 {
		return 0
	}
	util.Assertf(len(bin) == 8, "corrupted balance record of account %s", a.StringShort)
	return ledger.Amount(binary.BigEndian.Uint64(bin))
}

// ForEachBalance iterates committed non-zero balances
func (l *LedgerState) ForEachBalance(fun func(a ledger.AccountID, balance ledger.Amount) bool) {
	l.store.Iterator([]byte{PartitionAccounts}).Iterate(func(k, v []byte) bool {
		a, err := ledger.AccountIDFromBytes(k[1:])
		if err != nil || len(v) != 8 {
			return true
		}
		balance := ledger.Amount(binary.BigEndian.Uint64(v))
		if balance == 0 {
			return true
		}
		return fun(a, balance)
	})
}

func (l *LedgerState) NewDraft() *Draft {
	return &Draft{
		l:        l,
		changed:  make(map[ledger.AccountID]ledger.Amount),
		consumed: make(map[ledger.InputID]struct{}),
	}
}

// InputConsumed true if the spend identifier has been consumed, either by an
// earlier milestone or earlier in this draft
func (d *Draft) InputConsumed(in ledger.InputID) bool {
	if _, ok := d.consumed[in]; ok {
		return true
	}
	return d.l.store.Has(consumedInputKey(in))
}

func (d *Draft) MarkConsumed(in ledger.InputID) {
	d.consumed[in] = struct{}{}
}

func (d *Draft) Balance(a ledger.AccountID) ledger.Amount {
	if b, ok := d.changed[a]; ok {
		return b
	}
	return d.l.Balance(a)
}

// Transfer applies the balance mutation of the transaction to the draft.
// ErrInsufficientFunds leaves the draft untouched
func (d *Draft) Transfer(tx *ledger.Transaction) error {
	total, err := tx.TotalAmount()
	if err != nil {
		return err
	}
	senderBalance := d.Balance(tx.Sender)
	if senderBalance < total {
		return errors.Wrapf(ErrInsufficientFunds, "account %s: balance %d, needed %d",
			tx.Sender.StringShort(), senderBalance, total)
	}
	d.changed[tx.Sender] = senderBalance - total
	for i := range tx.Outputs {
		d.changed[tx.Outputs[i].Account] = d.Balance(tx.Outputs[i].Account) + tx.Outputs[i].Amount
	}
	return nil
}

func (d *Draft) NumChangedAccounts() int {
	return len(d.changed)
}

func (d *Draft) ChangedAccounts() []ledger.AccountID {
	return maps.Keys(d.changed)
}

// Commit atomically writes the draft, advances the watermark to index and runs
// extraWrites (vertex metadata of the confirming milestone) in the same batch.
// On any error nothing is committed and the watermark does not move
func (l *LedgerState) Commit(d *Draft, index ledger.MilestoneIndex, extraWrites func(w common.KVWriter)) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if index != l.latestApplied+1 {
		return errors.Wrapf(ErrWrongMilestone, "expected %s, got %s", (l.latestApplied + 1).String(), index.String())
	}
	batch := l.store.BatchedWriter()
	for a, balance := range d.changed {
		batch.Set(accountKey(a), binary.BigEndian.AppendUint64(nil, uint64(balance)))
	}
	for in := range d.consumed {
		batch.Set(consumedInputKey(in), []byte{1})
	}
	batch.Set([]byte{PartitionMilestoneIndex}, binary.BigEndian.AppendUint32(nil, uint32(index)))
	if extraWrites != nil {
		extraWrites(batch)
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	l.latestApplied = index
	return nil
}

// CheckSupply recomputes the sum of all balances and compares with the declared
// supply. Expensive, used by tests and the CLI consistency check
func (l *LedgerState) CheckSupply() error {
	sum := uint64(0)
	l.ForEachBalance(func(_ ledger.AccountID, balance ledger.Amount) bool {
		sum += uint64(balance)
		return true
	})
	if sum != uint64(l.Supply()) {
		return errors.Wrapf(ErrSupplyNotConserved, "sum of balances %d != declared supply %d", sum, uint64(l.Supply()))
	}
	return nil
}
