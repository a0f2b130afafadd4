// Package workflow assembles the consensus components into the node core and
// exposes the gossip-facing surface: transaction and milestone bytes in,
// vertex requests and broadcasts out, confirmation events to subscribers
package workflow

import (
	"github.com/prateekvishnu/bee/core/events"
	"github.com/prateekvishnu/bee/core/gossip"
	"github.com/prateekvishnu/bee/core/milestones"
	"github.com/prateekvishnu/bee/core/solidifier"
	"github.com/prateekvishnu/bee/core/tippool"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/ledger/state"
	"github.com/prateekvishnu/bee/ledger/whiteflag"
	"github.com/prateekvishnu/bee/tangle/dag"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	// Transport outbound side of the gossip collaborator
	Transport interface {
		RequestVertex(id ledger.VertexID)
		Broadcast(frame []byte)
	}

	Workflow struct {
		global.NodeGlobal
		tangle      *dag.DAG
		ledgerState *state.LedgerState
		transport   Transport

		events     *events.Events
		solidifier *solidifier.Solidifier
		tipPool    *tippool.TipPool
		validator  *milestones.Validator

		// metrics
		txReceivedTotal  prometheus.Counter
		txMalformedTotal prometheus.Counter
	}

	noTransport struct{}
)

const TraceTag = "workflow"

func (noTransport) RequestVertex(_ ledger.VertexID) {}
func (noTransport) Broadcast(_ []byte)              {}

// Start builds and starts all work processes of the core
func Start(env global.NodeGlobal, stateStore global.StateStore, transport Transport, verifier milestones.SignatureVerifier) (*Workflow, error) {
	ledgerState, err := state.NewFromStore(stateStore)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = noTransport{}
	}
	ret := &Workflow{
		NodeGlobal:  env,
		tangle:      dag.New(stateStore),
		ledgerState: ledgerState,
		transport:   transport,
	}
	ret.registerMetrics()
	ret.events = events.New(ret)
	ret.tipPool = tippool.New(ret)
	ret.solidifier = solidifier.New(ret)
	ret.validator = milestones.New(ret, verifier)
	return ret, nil
}

func (w *Workflow) registerMetrics() {
	w.txReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bee_workflow_tx_received_total",
		Help: "number of transactions received from gossip",
	})
	w.txMalformedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bee_workflow_tx_malformed_total",
		Help: "number of malformed inputs dropped",
	})
	w.MetricsRegistry().MustRegister(w.txReceivedTotal, w.txMalformedTotal)
}

// component environment

func (w *Workflow) Tangle() *dag.DAG {
	return w.tangle
}

func (w *Workflow) LedgerState() *state.LedgerState {
	return w.ledgerState
}

func (w *Workflow) TipPool() *tippool.TipPool {
	return w.tipPool
}

func (w *Workflow) Events() *events.Events {
	return w.events
}

func (w *Workflow) RequestVertex(id ledger.VertexID) {
	w.transport.RequestVertex(id)
}

func (w *Workflow) OnVertexSolid(v *vertex.Vertex) {
	w.tipPool.OnVertexSolid(v)
	w.events.PostEvent(events.EventVertexSolid, v.ID)
	// a newly solid vertex may unblock a buffered milestone
	w.validator.Poke()
}

func (w *Workflow) OnMilestoneApplied(ms *ledger.Milestone, result *whiteflag.ConfirmationResult) {
	for i := range result.Confirmed {
		w.tipPool.OnVertexConfirmed(result.Confirmed[i].VID)
		w.events.PostEvent(events.EventVertexConfirmed, events.VertexConfirmed{
			VertexID:       result.Confirmed[i].VID.ID,
			MilestoneIndex: ms.Index,
			ConflictReason: result.Confirmed[i].Reason,
		})
	}
	w.tipPool.OnMilestoneApplied(ms)
	w.events.PostEvent(events.EventMilestoneApplied, events.MilestoneApplied{
		Index:        ms.Index,
		NumConfirmed: result.NumAccepted,
		NumConflicts: result.NumConflicts,
	})
}

// gossip-facing surface

// GossipFrameIn entry point for a framed message from the transport.
// Malformed frames are dropped here and never reach the ledger
func (w *Workflow) GossipFrameIn(frame []byte) error {
	msgType, payload, err := gossip.FromBytes(frame)
	if err != nil {
		w.txMalformedTotal.Inc()
		return err
	}
	switch msgType {
	case gossip.MessageTypeTransaction:
		_, err = w.TxBytesIn(payload)
	case gossip.MessageTypeMilestone:
		err = w.MilestoneBytesIn(payload)
	}
	return err
}

// TxBytesIn parses and attaches a transaction. Idempotent on duplicates
func (w *Workflow) TxBytesIn(txBytes []byte) (ledger.VertexID, error) {
	tx, err := ledger.TransactionFromBytes(txBytes)
	if err != nil {
		w.txMalformedTotal.Inc()
		return ledger.VertexID{}, err
	}
	w.txReceivedTotal.Inc()

	v, inserted := w.tangle.AttachVertex(vertex.New(tx))
	w.Tracef(TraceTag, "tx IN: %s, new: %v", v.StringShort, inserted)
	if inserted {
		w.solidifier.VertexIn(v)
	}
	return v.ID, nil
}

func (w *Workflow) MilestoneBytesIn(msBytes []byte) error {
	ms, err := ledger.MilestoneFromBytes(msBytes)
	if err != nil {
		w.txMalformedTotal.Inc()
		return err
	}
	w.validator.MilestoneIn(ms)
	return nil
}

// SubmitTransaction attaches a locally built transaction and broadcasts it
func (w *Workflow) SubmitTransaction(tx *ledger.Transaction) (ledger.VertexID, error) {
	txid, err := w.TxBytesIn(tx.Bytes())
	if err != nil {
		return ledger.VertexID{}, err
	}
	frame, err := gossip.ToBytes(gossip.MessageTypeTransaction, tx.Bytes())
	if err != nil {
		return ledger.VertexID{}, err
	}
	w.transport.Broadcast(frame)
	return txid, nil
}

// SelectTipPair trunk and branch for a new transaction
func (w *Workflow) SelectTipPair() (ledger.VertexID, ledger.VertexID, error) {
	return w.tipPool.SelectTipPair()
}

// NotifyPruned the pruning collaborator removed the vertex
func (w *Workflow) NotifyPruned(id ledger.VertexID) {
	w.tangle.NotifyPruned(id)
	w.solidifier.NotifyPruned(id)
}

// SyncStatus latest seen vs latest applied milestone index
func (w *Workflow) SyncStatus() (latestSeen, latestApplied ledger.MilestoneIndex) {
	return w.validator.LatestSeen(), w.ledgerState.LatestAppliedMilestone()
}
