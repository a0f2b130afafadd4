package whiteflag

import (
	"testing"

	"github.com/lunfardo314/unitrie/common"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/ledger/state"
	"github.com/prateekvishnu/bee/tangle/dag"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/stretchr/testify/require"
)

type testTangle struct {
	t      *testing.T
	d      *dag.DAG
	ls     *state.LedgerState
	faucet ledger.AccountID
}

func newTestTangle(t *testing.T, supply ledger.Amount) *testTangle {
	store := common.NewInMemoryKVStore()
	faucet := ledger.RandomAccountID()
	require.NoError(t, state.InitGenesis(store, faucet, supply))
	ls, err := state.NewFromStore(store)
	require.NoError(t, err)
	return &testTangle{
		t:      t,
		d:      dag.New(store),
		ls:     ls,
		faucet: faucet,
	}
}

func inputID(n byte) (ret ledger.InputID) {
	ret[0] = n
	ret[1] = 0xee
	return
}

// spend attaches a vertex spending amount from the sender to a fresh account
func (tt *testTangle) spend(sender ledger.AccountID, in ledger.InputID, target ledger.AccountID, amount ledger.Amount, trunk, branch ledger.VertexID) *vertex.Vertex {
	tx := &ledger.Transaction{
		Sender:       sender,
		Inputs:       []ledger.InputID{in},
		Outputs:      []ledger.Output{{Account: target, Amount: amount}},
		TrunkParent:  trunk,
		BranchParent: branch,
	}
	v, inserted := tt.d.AttachVertex(vertex.New(tx))
	require.True(tt.t, inserted)
	return v
}

// checkpoint attaches a value-free vertex, the usual payload of a milestone
func (tt *testTangle) checkpoint(trunk, branch ledger.VertexID) *vertex.Vertex {
	tx := &ledger.Transaction{
		Sender:       ledger.RandomAccountID(),
		TrunkParent:  trunk,
		BranchParent: branch,
	}
	v, inserted := tt.d.AttachVertex(vertex.New(tx))
	require.True(tt.t, inserted)
	return v
}

func (tt *testTangle) confirm(index ledger.MilestoneIndex, referenced ledger.VertexID) (*ConfirmationResult, error) {
	return ConfirmMilestone(tt.d, tt.ls, &ledger.Milestone{
		Index:            index,
		ReferencedVertex: referenced,
	})
}

func orderIDs(order []*vertex.Vertex) []ledger.VertexID {
	ret := make([]ledger.VertexID, len(order))
	for i, v := range order {
		ret[i] = v.ID
	}
	return ret
}

func TestOrder(t *testing.T) {
	t.Run("trunk before branch", func(t *testing.T) {
		tt := newTestTangle(t, 1000)
		acct := ledger.RandomAccountID()
		a := tt.spend(tt.faucet, inputID(1), acct, 1, ledger.GenesisVertexID, ledger.GenesisVertexID)
		b := tt.spend(tt.faucet, inputID(2), acct, 2, a.ID, a.ID)
		c := tt.spend(tt.faucet, inputID(3), acct, 3, a.ID, a.ID)
		d := tt.checkpoint(b.ID, c.ID)

		order, err := Order(tt.d, d.ID)
		require.NoError(t, err)
		// parents before children, the trunk subtree of d fully before the branch subtree
		require.EqualValues(t, []ledger.VertexID{a.ID, b.ID, c.ID, d.ID}, orderIDs(order))

		// identical on recomputation
		again, err := Order(tt.d, d.ID)
		require.NoError(t, err)
		require.EqualValues(t, orderIDs(order), orderIDs(again))
	})
	t.Run("shared ancestor once", func(t *testing.T) {
		tt := newTestTangle(t, 1000)
		acct := ledger.RandomAccountID()
		a := tt.spend(tt.faucet, inputID(1), acct, 1, ledger.GenesisVertexID, ledger.GenesisVertexID)
		b := tt.spend(tt.faucet, inputID(2), acct, 2, a.ID, ledger.GenesisVertexID)
		c := tt.spend(tt.faucet, inputID(3), acct, 3, a.ID, b.ID)

		order, err := Order(tt.d, c.ID)
		require.NoError(t, err)
		require.EqualValues(t, []ledger.VertexID{a.ID, b.ID, c.ID}, orderIDs(order))
	})
	t.Run("missing vertex", func(t *testing.T) {
		tt := newTestTangle(t, 1000)
		ghost := ledger.RandomVertexID()
		v := tt.checkpoint(ghost, ledger.GenesisVertexID)

		_, err := Order(tt.d, v.ID)
		require.ErrorIs(t, err, ErrMissingVertex)
	})
	t.Run("confirmed boundary", func(t *testing.T) {
		tt := newTestTangle(t, 1000)
		acct := ledger.RandomAccountID()
		a := tt.spend(tt.faucet, inputID(1), acct, 1, ledger.GenesisVertexID, ledger.GenesisVertexID)
		b := tt.spend(tt.faucet, inputID(2), acct, 2, a.ID, a.ID)
		a.SetConfirmed(1, vertex.ConflictNone)

		order, err := Order(tt.d, b.ID)
		require.NoError(t, err)
		require.EqualValues(t, []ledger.VertexID{b.ID}, orderIDs(order))
	})
	t.Run("deep chain", func(t *testing.T) {
		tt := newTestTangle(t, 1_000_000)
		acct := ledger.RandomAccountID()
		const depth = 2000
		prev := ledger.GenesisVertexID
		for i := 0; i < depth; i++ {
			prev = tt.spend(tt.faucet, ledger.InputID(ledger.HashData([]byte{byte(i), byte(i >> 8), byte(i >> 16)})), acct, 1, prev, prev).ID
		}
		order, err := Order(tt.d, prev)
		require.NoError(t, err)
		require.Len(t, order, depth)
	})
}

func TestConfirmMilestone(t *testing.T) {
	t.Run("double spend first seen wins", func(t *testing.T) {
		tt := newTestTangle(t, 10)
		acct2 := ledger.RandomAccountID()
		acct3 := ledger.RandomAccountID()
		// a and b consume the same spend identifier
		a := tt.spend(tt.faucet, inputID(7), acct2, 10, ledger.GenesisVertexID, ledger.GenesisVertexID)
		b := tt.spend(tt.faucet, inputID(7), acct3, 10, a.ID, ledger.GenesisVertexID)
		m := tt.checkpoint(a.ID, b.ID)

		res, err := tt.confirm(1, m.ID)
		require.NoError(t, err)
		require.EqualValues(t, 2, res.NumAccepted) // a and the checkpoint
		require.EqualValues(t, 1, res.NumConflicts)

		require.False(t, a.IsConflicting())
		require.EqualValues(t, vertex.ConflictDoubleSpend, b.ConflictReason())
		require.True(t, b.IsConfirmed())

		require.EqualValues(t, 0, tt.ls.Balance(tt.faucet))
		require.EqualValues(t, 10, tt.ls.Balance(acct2))
		require.EqualValues(t, 0, tt.ls.Balance(acct3))
		require.NoError(t, tt.ls.CheckSupply())
	})
	t.Run("insufficient balance", func(t *testing.T) {
		tt := newTestTangle(t, 10)
		acct2 := ledger.RandomAccountID()
		acct3 := ledger.RandomAccountID()
		// distinct spend identifiers, the second overdraws the drained account
		a := tt.spend(tt.faucet, inputID(1), acct2, 10, ledger.GenesisVertexID, ledger.GenesisVertexID)
		b := tt.spend(tt.faucet, inputID(2), acct3, 10, a.ID, ledger.GenesisVertexID)
		m := tt.checkpoint(a.ID, b.ID)

		res, err := tt.confirm(1, m.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, res.NumConflicts)
		require.EqualValues(t, vertex.ConflictInsufficientBalance, b.ConflictReason())
		require.EqualValues(t, 10, tt.ls.Balance(acct2))
		require.NoError(t, tt.ls.CheckSupply())
	})
	t.Run("double spend across milestones", func(t *testing.T) {
		tt := newTestTangle(t, 100)
		acct2 := ledger.RandomAccountID()
		a := tt.spend(tt.faucet, inputID(9), acct2, 10, ledger.GenesisVertexID, ledger.GenesisVertexID)
		_, err := tt.confirm(1, a.ID)
		require.NoError(t, err)

		// same spend identifier again, confirmed by the next milestone
		b := tt.spend(tt.faucet, inputID(9), acct2, 10, a.ID, ledger.GenesisVertexID)
		res, err := tt.confirm(2, b.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, res.NumConflicts)
		require.EqualValues(t, vertex.ConflictDoubleSpend, b.ConflictReason())
		require.EqualValues(t, 90, tt.ls.Balance(tt.faucet))
		require.EqualValues(t, 10, tt.ls.Balance(acct2))
	})
	t.Run("watermark and metadata", func(t *testing.T) {
		tt := newTestTangle(t, 100)
		a := tt.spend(tt.faucet, inputID(1), ledger.RandomAccountID(), 5, ledger.GenesisVertexID, ledger.GenesisVertexID)

		res, err := tt.confirm(1, a.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, res.Index)
		require.EqualValues(t, 1, tt.ls.LatestAppliedMilestone())

		by, confirmed := a.ConfirmedBy()
		require.True(t, confirmed)
		require.EqualValues(t, 1, by)

		// metadata survives in the store partition
		found := 0
		dag.IterateConfirmedMetadata(tt.d.StateStore(), func(id ledger.VertexID, confirmedBy ledger.MilestoneIndex, reason vertex.ConflictReason) bool {
			found++
			require.EqualValues(t, a.ID, id)
			require.EqualValues(t, 1, confirmedBy)
			require.EqualValues(t, vertex.ConflictNone, reason)
			return true
		})
		require.EqualValues(t, 1, found)
	})
	t.Run("rejected stays rejected", func(t *testing.T) {
		tt := newTestTangle(t, 10)
		acct2 := ledger.RandomAccountID()
		acct3 := ledger.RandomAccountID()
		a := tt.spend(tt.faucet, inputID(1), acct2, 10, ledger.GenesisVertexID, ledger.GenesisVertexID)
		b := tt.spend(tt.faucet, inputID(1), acct3, 10, a.ID, ledger.GenesisVertexID)
		_, err := tt.confirm(1, b.ID)
		require.NoError(t, err)
		require.EqualValues(t, vertex.ConflictDoubleSpend, b.ConflictReason())

		// a later milestone referencing past b does not reconsider it
		c := tt.checkpoint(b.ID, b.ID)
		res, err := tt.confirm(2, c.ID)
		require.NoError(t, err)
		require.EqualValues(t, 0, res.NumConflicts)
		require.EqualValues(t, vertex.ConflictDoubleSpend, b.ConflictReason())
		require.EqualValues(t, 0, tt.ls.Balance(acct3))
	})
	t.Run("wrong milestone index not committed", func(t *testing.T) {
		tt := newTestTangle(t, 100)
		a := tt.spend(tt.faucet, inputID(1), ledger.RandomAccountID(), 5, ledger.GenesisVertexID, ledger.GenesisVertexID)

		_, err := tt.confirm(5, a.ID)
		require.ErrorIs(t, err, state.ErrWrongMilestone)
		require.False(t, a.IsConfirmed())
		require.EqualValues(t, 100, tt.ls.Balance(tt.faucet))

		// retry with the right index succeeds
		_, err = tt.confirm(1, a.ID)
		require.NoError(t, err)
		require.True(t, a.IsConfirmed())
	})
}
