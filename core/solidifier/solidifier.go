// Package solidifier drives solidification: the backward walk which determines,
// for every attached vertex, whether its full ancestor chain is present locally.
// Missing ancestors are requested from peers and re-requested with a deadline a
// bounded number of times. A vertex whose ancestor can never be obtained is
// marked unsolidifiable, a terminal status.
//
// All solidity bookkeeping is owned by the single consumer goroutine of the
// work process: solidity flags have exactly one writer
package solidifier

import (
	"time"

	"github.com/prateekvishnu/bee/core/work_process"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/tangle/dag"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

type (
	environment interface {
		work_process.Environment
		Tangle() *dag.DAG
		RequestVertex(id ledger.VertexID)
		OnVertexSolid(v *vertex.Vertex)
	}

	Input struct {
		VID          *vertex.Vertex
		Pruned       *ledger.VertexID
		checkExpired bool
	}

	Solidifier struct {
		environment
		*work_process.WorkProcess[*Input]
		retryPeriod time.Duration
		maxRetries  int

		// owned by the consumer goroutine
		pendingParents map[ledger.VertexID]int
		waiters        map[ledger.VertexID][]*vertex.Vertex
		requests       map[ledger.VertexID]*requestRecord

		// metrics
		solidTotal          prometheus.Counter
		requestsTotal       prometheus.Counter
		unsolidifiableTotal prometheus.Counter
		numOutstanding      prometheus.Gauge
	}

	requestRecord struct {
		since        time.Time
		nextDeadline time.Time
		retries      int
	}
)

const (
	Name     = "solidifier"
	TraceTag = Name

	defaultRetryPeriod = 2 * time.Second
	defaultMaxRetries  = 5
)

func New(env environment) *Solidifier {
	ret := &Solidifier{
		environment:    env,
		retryPeriod:    defaultRetryPeriod,
		maxRetries:     defaultMaxRetries,
		pendingParents: make(map[ledger.VertexID]int),
		waiters:        make(map[ledger.VertexID][]*vertex.Vertex),
		requests:       make(map[ledger.VertexID]*requestRecord),
	}
	if p := viper.GetDuration("solidifier.retry_period"); p > 0 {
		ret.retryPeriod = p
	}
	if n := viper.GetInt("solidifier.max_retries"); n > 0 {
		ret.maxRetries = n
	}
	ret.registerMetrics()
	ret.WorkProcess = work_process.New[*Input](env, Name, ret.consume)
	ret.WorkProcess.Start()

	ret.RepeatInBackground(Name+"_expiry_loop", ret.retryPeriod/2, func() bool {
		ret.Queue.Push(&Input{checkExpired: true})
		return true
	}, true)
	return ret
}

func (s *Solidifier) registerMetrics() {
	s.solidTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bee_solidifier_solid_total",
		Help: "number of vertices promoted to solid",
	})
	s.requestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bee_solidifier_requests_total",
		Help: "number of missing-ancestor requests sent to peers",
	})
	s.unsolidifiableTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bee_solidifier_unsolidifiable_total",
		Help: "number of vertices given up as unsolidifiable",
	})
	s.numOutstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bee_solidifier_outstanding_requests",
		Help: "current size of the outstanding request set",
	})
	s.MetricsRegistry().MustRegister(s.solidTotal, s.requestsTotal, s.unsolidifiableTotal, s.numOutstanding)
}

// VertexIn newly attached vertex enters the solidification pipeline
func (s *Solidifier) VertexIn(v *vertex.Vertex) {
	s.Queue.Push(&Input{VID: v})
}

// NotifyPruned stop expecting the vertex: the pruning collaborator removed it
func (s *Solidifier) NotifyPruned(id ledger.VertexID) {
	s.Queue.Push(&Input{Pruned: &id})
}

func (s *Solidifier) consume(inp *Input) {
	switch {
	case inp.VID != nil:
		s.vertexIn(inp.VID)
	case inp.Pruned != nil:
		s.pruned(*inp.Pruned)
	case inp.checkExpired:
		s.checkExpired()
	}
}

func (s *Solidifier) vertexIn(v *vertex.Vertex) {
	s.Tracef(TraceTag, "vertex IN: %s", v.StringShort)

	// the vertex may itself be an awaited ancestor
	if _, waited := s.requests[v.ID]; waited {
		delete(s.requests, v.ID)
		s.numOutstanding.Set(float64(len(s.requests)))
	}

	missing := 0
	for _, parent := range distinctParents(v) {
		pv := s.Tangle().GetVertex(parent)
		if pv != nil && pv.IsSolid() {
			continue
		}
		// a parent already given up on dooms the vertex right away: the
		// cascade over its waiter list has already run
		if pv != nil && pv.Status() == vertex.StatusUnsolidifiable {
			if v.SetUnsolidifiable() {
				s.unsolidifiableTotal.Inc()
				s.markUnsolidifiable(v.ID)
			}
			return
		}
		missing++
		s.waiters[parent] = append(s.waiters[parent], v)
		if pv == nil {
			s.ensureRequested(parent)
		}
	}
	if missing == 0 {
		s.promote(v)
		return
	}
	s.pendingParents[v.ID] = missing
}

func distinctParents(v *vertex.Vertex) []ledger.VertexID {
	trunk, branch := v.Parents()
	ret := make([]ledger.VertexID, 0, 2)
	if trunk != ledger.GenesisVertexID {
		ret = append(ret, trunk)
	}
	if branch != trunk && branch != ledger.GenesisVertexID {
		ret = append(ret, branch)
	}
	return ret
}

func (s *Solidifier) ensureRequested(id ledger.VertexID) {
	if _, already := s.requests[id]; already {
		return
	}
	s.requests[id] = &requestRecord{
		since:        time.Now(),
		nextDeadline: time.Now().Add(s.retryPeriod),
	}
	s.requestsTotal.Inc()
	s.numOutstanding.Set(float64(len(s.requests)))
	s.Tracef(TraceTag, "requesting missing ancestor %s", id.StringShort)
	s.RequestVertex(id)
}

// promote marks the vertex solid and cascades to its waiters.
// Explicit worklist, unsolid chains can be deep
func (s *Solidifier) promote(v *vertex.Vertex) {
	worklist := []*vertex.Vertex{v}
	for len(worklist) > 0 {
		next := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if !next.SetSolid() {
			continue
		}
		s.solidTotal.Inc()
		s.Tracef(TraceTag, "vertex SOLID: %s", next.StringShort)
		s.OnVertexSolid(next)

		for _, waiter := range s.waiters[next.ID] {
			left := s.pendingParents[waiter.ID] - 1
			if left > 0 {
				s.pendingParents[waiter.ID] = left
				continue
			}
			delete(s.pendingParents, waiter.ID)
			worklist = append(worklist, waiter)
		}
		delete(s.waiters, next.ID)
	}
}

func (s *Solidifier) pruned(id ledger.VertexID) {
	delete(s.requests, id)
	s.numOutstanding.Set(float64(len(s.requests)))
	s.Tracef(TraceTag, "pruned: %s", id.StringShort)
}

func (s *Solidifier) checkExpired() {
	now := time.Now()
	for id, rec := range s.requests {
		if now.Before(rec.nextDeadline) {
			continue
		}
		if rec.retries < s.maxRetries {
			rec.retries++
			rec.nextDeadline = now.Add(s.retryPeriod)
			s.requestsTotal.Inc()
			s.Tracef(TraceTag, "re-requesting %s, retry %d", id.StringShort, rec.retries)
			s.RequestVertex(id)
			continue
		}
		s.Log().Warnf("[%s] giving up on missing ancestor %s after %d retries (%v)",
			Name, id.StringShort(), rec.retries, time.Since(rec.since))
		delete(s.requests, id)
		s.markUnsolidifiable(id)
	}
	s.numOutstanding.Set(float64(len(s.requests)))
}

// markUnsolidifiable a permanently missing ancestor makes its whole dependent
// subgraph unsolidifiable
func (s *Solidifier) markUnsolidifiable(id ledger.VertexID) {
	worklist := []ledger.VertexID{id}
	for len(worklist) > 0 {
		next := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		for _, waiter := range s.waiters[next] {
			delete(s.pendingParents, waiter.ID)
			if waiter.SetUnsolidifiable() {
				s.unsolidifiableTotal.Inc()
				worklist = append(worklist, waiter.ID)
			}
		}
		delete(s.waiters, next)
	}
}
