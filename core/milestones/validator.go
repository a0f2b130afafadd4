// Package milestones validates incoming milestones and applies them to the
// ledger strictly in index order. The single consumer goroutine of the work
// process is the only writer of the ledger state
package milestones

import (
	"time"

	"github.com/prateekvishnu/bee/core/work_process"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/ledger/state"
	"github.com/prateekvishnu/bee/ledger/whiteflag"
	"github.com/prateekvishnu/bee/tangle/dag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
)

type (
	// State of a milestone in the validation pipeline
	State byte

	environment interface {
		work_process.Environment
		Tangle() *dag.DAG
		LedgerState() *state.LedgerState
		RequestVertex(id ledger.VertexID)
		OnMilestoneApplied(ms *ledger.Milestone, result *whiteflag.ConfirmationResult)
	}

	Input struct {
		Ms   *ledger.Milestone
		poke bool
	}

	pendingMilestone struct {
		ms    *ledger.Milestone
		state State
	}

	Validator struct {
		environment
		*work_process.WorkProcess[*Input]
		verifier SignatureVerifier

		// owned by the consumer goroutine
		pending map[ledger.MilestoneIndex]*pendingMilestone
		// read concurrently by sync status
		latestSeen atomic.Uint32

		// metrics
		appliedTotal       prometheus.Counter
		rejectedTotal      prometheus.Counter
		latestSeenGauge    prometheus.Gauge
		latestAppliedGauge prometheus.Gauge
	}
)

const (
	StateReceived = State(iota)
	StateSignatureVerified
	StateReferenced
	StateApplying
	StateApplied
	StateRejected
)

const (
	Name     = "milestones"
	TraceTag = Name

	defaultRetryPeriod = 5 * time.Second
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateSignatureVerified:
		return "signatureVerified"
	case StateReferenced:
		return "referenced"
	case StateApplying:
		return "applying"
	case StateApplied:
		return "applied"
	case StateRejected:
		return "rejected"
	}
	return "wrongState"
}

func New(env environment, verifier SignatureVerifier) *Validator {
	ret := &Validator{
		environment: env,
		verifier:    verifier,
		pending:     make(map[ledger.MilestoneIndex]*pendingMilestone),
	}
	ret.registerMetrics()
	ret.WorkProcess = work_process.New[*Input](env, Name, ret.consume)
	ret.WorkProcess.Start()

	// pending milestones stuck on a transient apply failure must not wait for
	// the next solidification event on a quiet node
	retryPeriod := defaultRetryPeriod
	if p := viper.GetDuration("milestones.retry_period"); p > 0 {
		retryPeriod = p
	}
	ret.RepeatInBackground(Name+"_retry_loop", retryPeriod, func() bool {
		ret.Poke()
		return true
	}, true)
	return ret
}

func (m *Validator) registerMetrics() {
	m.appliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bee_milestones_applied_total",
		Help: "number of milestones applied to the ledger",
	})
	m.rejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bee_milestones_rejected_total",
		Help: "number of milestones rejected",
	})
	m.latestSeenGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bee_milestones_latest_seen_index",
		Help: "highest valid milestone index seen",
	})
	m.latestAppliedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bee_milestones_latest_applied_index",
		Help: "latest applied milestone index",
	})
	m.MetricsRegistry().MustRegister(m.appliedTotal, m.rejectedTotal, m.latestSeenGauge, m.latestAppliedGauge)
}

// MilestoneIn validated asynchronously
func (m *Validator) MilestoneIn(ms *ledger.Milestone) {
	m.Queue.Push(&Input{Ms: ms})
}

// Poke re-checks pending milestones, called when new vertices become solid
func (m *Validator) Poke() {
	m.Queue.Push(&Input{poke: true})
}

// LatestSeen highest valid index seen so far, used for sync status
func (m *Validator) LatestSeen() ledger.MilestoneIndex {
	return ledger.MilestoneIndex(m.latestSeen.Load())
}

func (m *Validator) consume(inp *Input) {
	if inp.Ms != nil {
		m.milestoneIn(inp.Ms)
	}
	m.tryAdvance()
}

func (m *Validator) milestoneIn(ms *ledger.Milestone) {
	m.Tracef(TraceTag, "milestone IN: %s -> %s", ms.Index.String, ms.ReferencedVertex.StringShort)

	if err := m.verifier.Verify(ms.EssenceBytes(), ms.Signatures); err != nil {
		// operator must know: an invalid signature on a milestone is either
		// misconfiguration or an attack
		m.Log().Errorf("[%s] REJECTED milestone %s: %v", Name, ms.Index.String(), err)
		m.rejectedTotal.Inc()
		return
	}
	latestApplied := m.LedgerState().LatestAppliedMilestone()
	if ms.Index <= latestApplied {
		m.Tracef(TraceTag, "milestone %s already applied, dropped", ms.Index.String)
		return
	}
	if _, already := m.pending[ms.Index]; already {
		return
	}
	// valid milestones with a future index are buffered, never rejected
	m.pending[ms.Index] = &pendingMilestone{
		ms:    ms,
		state: StateSignatureVerified,
	}
	if uint32(ms.Index) > m.latestSeen.Load() {
		m.latestSeen.Store(uint32(ms.Index))
		m.latestSeenGauge.Set(float64(ms.Index))
	}
}

// tryAdvance applies consecutive pending milestones starting right after the
// watermark, as far as solidity allows. Strict index order: index i+1 never
// touches the ledger before i completed
func (m *Validator) tryAdvance() {
	for {
		next := m.LedgerState().LatestAppliedMilestone() + 1
		p, ok := m.pending[next]
		if !ok {
			return
		}
		if !m.Tangle().HasVertex(p.ms.ReferencedVertex) {
			// referenced vertex not even seen: ask peers, solidification will poke us
			m.RequestVertex(p.ms.ReferencedVertex)
			return
		}
		if !m.Tangle().IsSolid(p.ms.ReferencedVertex) {
			p.state = StateReferenced
			return
		}
		p.state = StateApplying
		result, err := whiteflag.ConfirmMilestone(m.Tangle(), m.LedgerState(), p.ms)
		if err != nil {
			// nothing was committed. Remains in applying state, retried on the next poke
			m.Log().Errorf("[%s] apply of milestone %s failed, will retry: %v", Name, p.ms.Index.String(), err)
			return
		}
		p.state = StateApplied
		delete(m.pending, next)
		m.appliedTotal.Inc()
		m.latestAppliedGauge.Set(float64(p.ms.Index))
		m.Log().Infof("[%s] APPLIED milestone %s: %d confirmed, %d conflicts",
			Name, p.ms.Index.String(), result.NumAccepted, result.NumConflicts)

		m.OnMilestoneApplied(p.ms, result)
	}
}
