package solidifier

import (
	"testing"
	"time"

	"github.com/lunfardo314/unitrie/common"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/tangle/dag"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	*global.Global
	tangle    *dag.DAG
	requested chan ledger.VertexID
	solid     chan ledger.VertexID
}

func (e *testEnv) Tangle() *dag.DAG {
	return e.tangle
}

func (e *testEnv) RequestVertex(id ledger.VertexID) {
	select {
	case e.requested <- id:
	default:
	}
}

func (e *testEnv) OnVertexSolid(v *vertex.Vertex) {
	e.solid <- v.ID
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		Global:    global.New(),
		tangle:    dag.New(common.NewInMemoryKVStore()),
		requested: make(chan ledger.VertexID, 100),
		solid:     make(chan ledger.VertexID, 100),
	}
	t.Cleanup(func() {
		env.Stop()
		env.MustWaitAllWorkProcessesStop(5 * time.Second)
	})
	return env
}

func makeVertex(trunk, branch ledger.VertexID) *vertex.Vertex {
	return vertex.New(&ledger.Transaction{
		Sender:       ledger.RandomAccountID(),
		TrunkParent:  trunk,
		BranchParent: branch,
	})
}

func (e *testEnv) attach(t *testing.T, v *vertex.Vertex) *vertex.Vertex {
	ret, inserted := e.tangle.AttachVertex(v)
	require.True(t, inserted)
	return ret
}

func waitSolid(t *testing.T, env *testEnv, expect ...ledger.VertexID) {
	for _, id := range expect {
		select {
		case got := <-env.solid:
			require.EqualValues(t, id, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("vertex %s did not become solid", id.StringShort())
		}
	}
}

func TestSolidifier(t *testing.T) {
	t.Run("genesis children solid immediately", func(t *testing.T) {
		env := newTestEnv(t)
		s := New(env)

		v := env.attach(t, makeVertex(ledger.GenesisVertexID, ledger.GenesisVertexID))
		s.VertexIn(v)
		waitSolid(t, env, v.ID)
		require.True(t, v.IsSolid())
		require.Len(t, env.requested, 0)
	})
	t.Run("parent arrives after child", func(t *testing.T) {
		env := newTestEnv(t)
		s := New(env)

		parent := makeVertex(ledger.GenesisVertexID, ledger.GenesisVertexID)
		child := env.attach(t, makeVertex(parent.ID, ledger.GenesisVertexID))
		s.VertexIn(child)

		// the missing parent must be requested from peers
		select {
		case id := <-env.requested:
			require.EqualValues(t, parent.ID, id)
		case <-time.After(5 * time.Second):
			t.Fatal("missing parent was not requested")
		}
		require.False(t, child.IsSolid())

		// parent arrives, the chain solidifies parent first
		env.attach(t, parent)
		s.VertexIn(parent)
		waitSolid(t, env, parent.ID, child.ID)
	})
	t.Run("deep cascade", func(t *testing.T) {
		env := newTestEnv(t)
		s := New(env)

		const depth = 500
		chain := make([]*vertex.Vertex, depth)
		prev := ledger.GenesisVertexID
		for i := range chain {
			chain[i] = env.attach(t, makeVertex(prev, ledger.GenesisVertexID))
			prev = chain[i].ID
		}
		// feed in reverse: everything waits for the very first link
		for i := depth - 1; i > 0; i-- {
			s.VertexIn(chain[i])
		}
		s.VertexIn(chain[0])

		expect := make([]ledger.VertexID, depth)
		for i := range chain {
			expect[i] = chain[i].ID
		}
		waitSolid(t, env, expect...)
	})
	t.Run("solid parent needs no request", func(t *testing.T) {
		env := newTestEnv(t)
		s := New(env)

		parent := env.attach(t, makeVertex(ledger.GenesisVertexID, ledger.GenesisVertexID))
		s.VertexIn(parent)
		waitSolid(t, env, parent.ID)

		child := env.attach(t, makeVertex(parent.ID, ledger.GenesisVertexID))
		s.VertexIn(child)
		waitSolid(t, env, child.ID)
		require.Len(t, env.requested, 0)
	})
	t.Run("expired requests give up", func(t *testing.T) {
		viper.Set("solidifier.retry_period", 50*time.Millisecond)
		viper.Set("solidifier.max_retries", 2)
		defer func() {
			viper.Set("solidifier.retry_period", 0)
			viper.Set("solidifier.max_retries", 0)
		}()

		env := newTestEnv(t)
		s := New(env)

		ghostID := ledger.RandomVertexID()
		child := env.attach(t, makeVertex(ghostID, ledger.GenesisVertexID))
		grandchild := env.attach(t, makeVertex(child.ID, ledger.GenesisVertexID))
		s.VertexIn(child)
		s.VertexIn(grandchild)

		require.Eventually(t, func() bool {
			return child.Status() == vertex.StatusUnsolidifiable &&
				grandchild.Status() == vertex.StatusUnsolidifiable
		}, 5*time.Second, 10*time.Millisecond)

		// the pipeline keeps working for unrelated vertices
		other := env.attach(t, makeVertex(ledger.GenesisVertexID, ledger.GenesisVertexID))
		s.VertexIn(other)
		waitSolid(t, env, other.ID)
		require.EqualValues(t, vertex.StatusUnsolidifiable, child.Status())
	})
	t.Run("late child of unsolidifiable parent", func(t *testing.T) {
		viper.Set("solidifier.retry_period", 50*time.Millisecond)
		viper.Set("solidifier.max_retries", 2)
		defer func() {
			viper.Set("solidifier.retry_period", 0)
			viper.Set("solidifier.max_retries", 0)
		}()

		env := newTestEnv(t)
		s := New(env)

		ghostID := ledger.RandomVertexID()
		parent := env.attach(t, makeVertex(ghostID, ledger.GenesisVertexID))
		s.VertexIn(parent)
		require.Eventually(t, func() bool {
			return parent.Status() == vertex.StatusUnsolidifiable
		}, 5*time.Second, 10*time.Millisecond)

		// child attaches only after the parent was given up on: the cascade
		// over the waiter list already ran, the child must still go terminal
		child := env.attach(t, makeVertex(parent.ID, ledger.GenesisVertexID))
		s.VertexIn(child)
		require.Eventually(t, func() bool {
			return child.Status() == vertex.StatusUnsolidifiable
		}, 5*time.Second, 10*time.Millisecond)

		// and so must its own late descendants
		grandchild := env.attach(t, makeVertex(child.ID, ledger.GenesisVertexID))
		s.VertexIn(grandchild)
		require.Eventually(t, func() bool {
			return grandchild.Status() == vertex.StatusUnsolidifiable
		}, 5*time.Second, 10*time.Millisecond)

		// the dead branch produced no peer requests for the present parents
		for len(env.requested) > 0 {
			require.EqualValues(t, ghostID, <-env.requested)
		}
	})
	t.Run("pruned request dropped", func(t *testing.T) {
		viper.Set("solidifier.retry_period", 50*time.Millisecond)
		defer viper.Set("solidifier.retry_period", 0)

		env := newTestEnv(t)
		s := New(env)

		ghostID := ledger.RandomVertexID()
		child := env.attach(t, makeVertex(ghostID, ledger.GenesisVertexID))
		s.VertexIn(child)
		<-env.requested

		s.NotifyPruned(ghostID)
		time.Sleep(200 * time.Millisecond)
		for len(env.requested) > 0 {
			<-env.requested
		}
		// no re-requests after the pruning notification
		time.Sleep(200 * time.Millisecond)
		require.Len(t, env.requested, 0)
	})
}
