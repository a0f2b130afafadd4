package whiteflag

import (
	"github.com/lunfardo314/unitrie/common"
	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/ledger/state"
	"github.com/prateekvishnu/bee/tangle/dag"
	"github.com/prateekvishnu/bee/tangle/vertex"
)

type (
	// ConfirmedVertex outcome of one vertex in the closure
	ConfirmedVertex struct {
		VID    *vertex.Vertex
		Reason vertex.ConflictReason
	}

	ConfirmationResult struct {
		Index        ledger.MilestoneIndex
		Confirmed    []ConfirmedVertex
		NumAccepted  int
		NumConflicts int
	}
)

// ConfirmMilestone walks the white-flag order of the milestone's closure,
// applies non-conflicting balance mutations to a draft and commits the draft
// atomically together with the vertex metadata and the advanced watermark.
//
// First-seen-in-deterministic-order wins: a transaction re-using an input
// consumed earlier in the order (or by an earlier milestone) is marked
// doubleSpend; one overdrawing its sender account is marked insufficientBalance.
// Both stay permanently confirmed-as-rejected and never reconsidered.
//
// On a store failure nothing is committed, no in-memory mark is touched and
// the call can be retried
func ConfirmMilestone(tangle *dag.DAG, ls *state.LedgerState, ms *ledger.Milestone) (*ConfirmationResult, error) {
	order, err := Order(tangle, ms.ReferencedVertex)
	if err != nil {
		return nil, err
	}

	draft := ls.NewDraft()
	ret := &ConfirmationResult{
		Index:     ms.Index,
		Confirmed: make([]ConfirmedVertex, 0, len(order)),
	}

	for _, v := range order {
		reason := vertex.ConflictNone
		for _, in := range v.Tx.Inputs {
			if draft.InputConsumed(in) {
				reason = vertex.ConflictDoubleSpend
				break
			}
		}
		if reason == vertex.ConflictNone {
			switch err = draft.Transfer(v.Tx); {
			case err == nil:
				for _, in := range v.Tx.Inputs {
					draft.MarkConsumed(in)
				}
			case errors.Is(err, state.ErrInsufficientFunds):
				reason = vertex.ConflictInsufficientBalance
			default:
				// arithmetic or store trouble, not a conflict: abort the whole apply
				return nil, err
			}
		}
		ret.Confirmed = append(ret.Confirmed, ConfirmedVertex{VID: v, Reason: reason})
		if reason == vertex.ConflictNone {
			ret.NumAccepted++
		} else {
			ret.NumConflicts++
		}
	}

	err = ls.Commit(draft, ms.Index, func(w common.KVWriter) {
		for i := range ret.Confirmed {
			dag.WriteVertexMetadata(w, ret.Confirmed[i].VID, ms.Index, ret.Confirmed[i].Reason)
		}
	})
	if err != nil {
		return nil, err
	}

	// the batch is durable, now mark the in-memory vertices
	for i := range ret.Confirmed {
		ret.Confirmed[i].VID.SetConfirmed(ms.Index, ret.Confirmed[i].Reason)
	}
	return ret, nil
}
