// Package dag implements the in-memory tangle store: the vertex container with
// the forward (children-of) index, solidity flags and approval weight bookkeeping.
// The DAG never removes vertices on its own initiative, only on pruning
// notifications from the outside
package dag

import (
	"sync"

	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/prateekvishnu/bee/util"
	"github.com/prateekvishnu/bee/util/set"
	"golang.org/x/exp/maps"
)

type DAG struct {
	mutex      sync.RWMutex
	stateStore global.StateStore
	vertices   map[ledger.VertexID]*vertex.Vertex
	// children is the forward index, keyed by parent hash. Entries may exist
	// before the parent vertex itself arrives
	children map[ledger.VertexID]set.Set[ledger.VertexID]
}

func New(stateStore global.StateStore) *DAG {
	return &DAG{
		stateStore: stateStore,
		vertices:   make(map[ledger.VertexID]*vertex.Vertex),
		children:   make(map[ledger.VertexID]set.Set[ledger.VertexID]),
	}
}

func (d *DAG) StateStore() global.StateStore {
	return d.stateStore
}

// AttachVertex inserts the vertex. Idempotent: a duplicate hash returns the
// already stored vertex and false
func (d *DAG) AttachVertex(v *vertex.Vertex) (*vertex.Vertex, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if old, already := d.vertices[v.ID]; already {
		return old, false
	}
	d.vertices[v.ID] = v
	d.restoreMetadata(v)

	trunk, branch := v.Parents()
	d.addChildNoLock(trunk, v.ID)
	if branch != trunk {
		d.addChildNoLock(branch, v.ID)
	}

	// a vertex arriving after some of its approvers finds them in the forward
	// index: their subtree becomes its own weight and travels up with it
	delta := 1 + d.countPresentDescendantsNoLock(v.ID)
	if delta > 1 {
		v.AddApprovalWeight(delta - 1)
	}
	d.propagateApprovalNoLock(v, delta)
	return v, true
}

// countPresentDescendantsNoLock number of distinct present vertices reachable
// over the forward index from id, id itself excluded
func (d *DAG) countPresentDescendantsNoLock(id ledger.VertexID) int {
	visited := set.New[ledger.VertexID](id)
	count := 0
	worklist := d.children[id].AsList()
	for len(worklist) > 0 {
		next := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if visited.Contains(next) {
			continue
		}
		visited.Insert(next)
		if _, ok := d.vertices[next]; !ok {
			continue
		}
		count++
		worklist = append(worklist, d.children[next].AsList()...)
	}
	return count
}

func (d *DAG) addChildNoLock(parent, child ledger.VertexID) {
	cs, ok := d.children[parent]
	if !ok {
		cs = set.New[ledger.VertexID]()
		d.children[parent] = cs
	}
	cs.Insert(child)
}

// propagateApprovalNoLock adds delta approvers to every present ancestor of v.
// Explicit worklist, adversarially deep chains must not grow the stack.
// When the same approver reaches an ancestor over several paths the count may
// overshoot slightly; tip selection only needs the relative ordering
func (d *DAG) propagateApprovalNoLock(v *vertex.Vertex, delta int) {
	visited := set.New[ledger.VertexID](v.ID)
	trunk, branch := v.Parents()
	worklist := []ledger.VertexID{trunk, branch}

	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if visited.Contains(id) {
			continue
		}
		visited.Insert(id)
		ancestor, ok := d.vertices[id]
		if !ok {
			// missing or pruned, AttachVertex folds the subtree in on arrival
			continue
		}
		ancestor.AddApprovalWeight(delta)
		t, b := ancestor.Parents()
		worklist = append(worklist, t, b)
	}
}

func (d *DAG) GetVertex(id ledger.VertexID) *vertex.Vertex {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.vertices[id]
}

func (d *DAG) HasVertex(id ledger.VertexID) bool {
	return d.GetVertex(id) != nil
}

// Children known approvers of the hash, whether or not the vertex itself is present
func (d *DAG) Children(id ledger.VertexID) []ledger.VertexID {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.children[id].AsList()
}

func (d *DAG) NumChildren(id ledger.VertexID) int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return len(d.children[id])
}

// MarkSolid true if the vertex was promoted by the call
func (d *DAG) MarkSolid(id ledger.VertexID) bool {
	v := d.GetVertex(id)
	util.Assertf(v != nil, "MarkSolid: unknown vertex %s", id.StringShort)
	return v.SetSolid()
}

// IsSolid false for absent vertices
func (d *DAG) IsSolid(id ledger.VertexID) bool {
	v := d.GetVertex(id)
	return v != nil && v.IsSolid()
}

func (d *DAG) NumVertices() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return len(d.vertices)
}

// NotifyPruned drops the vertex and its index entries. Solidity bookkeeping of
// dependents is handled by the solidifier, which receives the same notification
func (d *DAG) NotifyPruned(id ledger.VertexID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	delete(d.vertices, id)
	delete(d.children, id)
}

// ForEachVertex reads under lock, fun must not call back into the DAG
func (d *DAG) ForEachVertex(fun func(v *vertex.Vertex) bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	for _, v := range d.vertices {
		if !fun(v) {
			return
		}
	}
}

func (d *DAG) VertexIDs() []ledger.VertexID {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return maps.Keys(d.vertices)
}
