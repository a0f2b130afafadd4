// Package whiteflag implements the deterministic confirmation algorithm: the
// total order over a milestone's past cone and the conflict-resolving,
// all-or-nothing application of its balance mutations to the ledger state.
//
// The parent order convention is trunk before branch. It is consensus-critical:
// every code path that walks parents must use Vertex.Parents() and keep this
// order, otherwise nodes diverge
package whiteflag

import (
	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/prateekvishnu/bee/util/set"
)

// Tangle read access needed by the ordering walk
type Tangle interface {
	GetVertex(id ledger.VertexID) *vertex.Vertex
}

var ErrMissingVertex = errors.New("missing vertex in the confirmation closure")

type dfsEntry struct {
	id       ledger.VertexID
	expanded bool
}

// Order computes the deterministic total order of the confirmation closure of
// start: all transitively referenced, not yet confirmed vertices, parents always
// before children, trunk subtree before branch subtree. Any two nodes computing
// this over the same closure obtain the identical sequence.
//
// Already confirmed vertices bound the walk and are not emitted.
// A missing (pruned or never seen) vertex inside the closure is an error:
// the caller must only confirm solid cones
func Order(tangle Tangle, start ledger.VertexID) ([]*vertex.Vertex, error) {
	ret := make([]*vertex.Vertex, 0)
	visited := set.New[ledger.VertexID]()

	// explicit stack, the closure may be adversarially deep
	stack := []dfsEntry{{id: start}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.expanded {
			v := tangle.GetVertex(top.id)
			ret = append(ret, v)
			stack = stack[:len(stack)-1]
			continue
		}
		if top.id == ledger.GenesisVertexID || visited.Contains(top.id) {
			stack = stack[:len(stack)-1]
			continue
		}
		v := tangle.GetVertex(top.id)
		if v == nil {
			return nil, errors.Wrapf(ErrMissingVertex, "%s", top.id.StringShort())
		}
		if v.IsConfirmed() {
			// confirmed by an earlier milestone, boundary of the closure
			stack = stack[:len(stack)-1]
			continue
		}
		visited.Insert(top.id)
		top.expanded = true

		// push branch first so that trunk is expanded first
		trunk, branch := v.Parents()
		if branch != trunk {
			stack = append(stack, dfsEntry{id: branch})
		}
		stack = append(stack, dfsEntry{id: trunk})
	}
	return ret, nil
}
