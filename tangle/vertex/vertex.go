// Package vertex defines the tangle vertex: immutable transaction payload wrapped
// together with its mutable local metadata (solidity, confirmation, conflict status)
package vertex

import (
	"sync"
	"time"

	"github.com/prateekvishnu/bee/ledger"
)

type (
	// ConflictReason why a vertex was excluded from ledger mutation
	ConflictReason byte

	// Status solidification status of the vertex
	Status byte

	// Vertex transaction payload plus local metadata. The payload is immutable,
	// metadata is protected by the embedded mutex. The metadata mutex is never
	// held while calling out of the vertex
	Vertex struct {
		Tx *ledger.Transaction
		ID ledger.VertexID

		mutex         sync.RWMutex
		status        Status
		arrivalTime   time.Time
		confirmedBy   ledger.MilestoneIndex
		confirmed     bool
		conflict      ConflictReason
		approvalCount int
	}
)

const (
	ConflictNone = ConflictReason(iota)
	ConflictDoubleSpend
	ConflictInsufficientBalance
)

const (
	// StatusUnsolid some ancestors still missing locally
	StatusUnsolid = Status(iota)
	// StatusSolid full ancestor chain is present and solid
	StatusSolid
	// StatusUnsolidifiable an ancestor could not be obtained; terminal
	StatusUnsolidifiable
)

func New(tx *ledger.Transaction) *Vertex {
	return &Vertex{
		Tx:          tx,
		ID:          tx.ID(),
		arrivalTime: time.Now(),
	}
}

func (r ConflictReason) String() string {
	switch r {
	case ConflictNone:
		return "none"
	case ConflictDoubleSpend:
		return "doubleSpend"
	case ConflictInsufficientBalance:
		return "insufficientBalance"
	}
	return "wrongConflictReason"
}

func (s Status) String() string {
	switch s {
	case StatusUnsolid:
		return "unsolid"
	case StatusSolid:
		return "solid"
	case StatusUnsolidifiable:
		return "unsolidifiable"
	}
	return "wrongStatus"
}

func (v *Vertex) Status() Status {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.status
}

func (v *Vertex) IsSolid() bool {
	return v.Status() == StatusSolid
}

// SetSolid solidity is monotone: an unsolidifiable or already solid vertex is never downgraded
func (v *Vertex) SetSolid() bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if v.status != StatusUnsolid {
		return false
	}
	v.status = StatusSolid
	return true
}

func (v *Vertex) SetUnsolidifiable() bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if v.status != StatusUnsolid {
		return false
	}
	v.status = StatusUnsolidifiable
	return true
}

func (v *Vertex) ArrivalTime() time.Time {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.arrivalTime
}

func (v *Vertex) SetArrivalTime(t time.Time) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.arrivalTime = t
}

// ConfirmedBy (index, true) if the vertex has been confirmed, accepted or rejected
func (v *Vertex) ConfirmedBy() (ledger.MilestoneIndex, bool) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.confirmedBy, v.confirmed
}

func (v *Vertex) IsConfirmed() bool {
	_, ret := v.ConfirmedBy()
	return ret
}

// SetConfirmed marks the vertex confirmed by the milestone, either accepted
// (reason == ConflictNone) or confirmed-as-rejected. Idempotent, first mark wins
func (v *Vertex) SetConfirmed(index ledger.MilestoneIndex, reason ConflictReason) bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if v.confirmed {
		return false
	}
	v.confirmed = true
	v.confirmedBy = index
	v.conflict = reason
	return true
}

func (v *Vertex) ConflictReason() ConflictReason {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.conflict
}

func (v *Vertex) IsConflicting() bool {
	return v.ConflictReason() != ConflictNone
}

// ApprovalWeight count of known transitive approvers, maintained incrementally.
// May be slightly stale under concurrency, which tip selection tolerates
func (v *Vertex) ApprovalWeight() int {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.approvalCount
}

func (v *Vertex) AddApprovalWeight(n int) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.approvalCount += n
}

// Parents trunk first, branch second. The order is consensus-critical:
// the white-flag traversal and all conflict resolution depend on it
func (v *Vertex) Parents() (ledger.VertexID, ledger.VertexID) {
	return v.Tx.TrunkParent, v.Tx.BranchParent
}

func (v *Vertex) StringShort() string {
	return v.ID.StringShort()
}
