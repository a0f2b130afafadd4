// Package tippool maintains the candidate attachment points of the tangle: the
// solid vertices with no confirmed children. Tip selection runs a weighted
// random walk from recent milestone anchors towards the tips, biased to
// heavier subtrees so that low-weight spam branches are rarely selected
package tippool

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/core/work_process"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/tangle/dag"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/prateekvishnu/bee/util/set"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
)

type (
	environment interface {
		work_process.Environment
		Tangle() *dag.DAG
	}

	TipPool struct {
		environment
		mutex        sync.RWMutex
		tips         set.Set[ledger.VertexID]
		anchors      []ledger.VertexID // referenced vertices of recent applied milestones, newest last
		biasExponent float64
		maxWalkLen   int
		rnd          *rand.Rand
		rndMutex     sync.Mutex
		tipCount     atomic.Int64
	}
)

const (
	Name     = "tippool"
	TraceTag = Name

	defaultBiasExponent = 2.0
	defaultMaxWalkLen   = 1000
	maxRecentAnchors    = 8
	selectionAttempts   = 10
)

// ErrNoValidTips recoverable: the caller should retry after a short delay
var ErrNoValidTips = errors.New("no valid tips")

func New(env environment) *TipPool {
	ret := &TipPool{
		environment:  env,
		tips:         set.New[ledger.VertexID](),
		anchors:      make([]ledger.VertexID, 0, maxRecentAnchors),
		biasExponent: defaultBiasExponent,
		maxWalkLen:   defaultMaxWalkLen,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if viper.IsSet("tipsel.bias") {
		ret.biasExponent = viper.GetFloat64("tipsel.bias")
	}
	if n := viper.GetInt("tipsel.max_walk_len"); n > 0 {
		ret.maxWalkLen = n
	}
	env.Tracef(TraceTag, "starting tip pool: bias=%v, maxWalkLen=%d", ret.biasExponent, ret.maxWalkLen)
	return ret
}

// OnVertexSolid newly solid vertex becomes a tip candidate
func (tp *TipPool) OnVertexSolid(v *vertex.Vertex) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	tp.tips.Insert(v.ID)
	tp.tipCount.Store(int64(len(tp.tips)))
	tp.Tracef(TraceTag, "tip IN: %s", v.StringShort)
}

// OnVertexConfirmed confirmation of a child expires the tip status of its
// parents. A conflicting vertex stops being a tip itself
func (tp *TipPool) OnVertexConfirmed(v *vertex.Vertex) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	trunk, branch := v.Parents()
	tp.tips.Remove(trunk, branch)
	if v.IsConflicting() {
		tp.tips.Remove(v.ID)
	}
	tp.tipCount.Store(int64(len(tp.tips)))
}

// OnMilestoneApplied registers the milestone's referenced vertex as walk anchor
func (tp *TipPool) OnMilestoneApplied(ms *ledger.Milestone) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	tp.anchors = append(tp.anchors, ms.ReferencedVertex)
	if len(tp.anchors) > maxRecentAnchors {
		tp.anchors = tp.anchors[len(tp.anchors)-maxRecentAnchors:]
	}
}

func (tp *TipPool) NumTips() int {
	return int(tp.tipCount.Load())
}

func (tp *TipPool) IsTip(id ledger.VertexID) bool {
	tp.mutex.RLock()
	defer tp.mutex.RUnlock()

	return tp.tips.Contains(id)
}

// SelectTipPair runs two independent weighted walks and returns a trunk/branch
// pair. The two tips are distinct unless the tangle currently offers only one
// valid tip, in which case ErrNoValidTips is returned
func (tp *TipPool) SelectTipPair() (trunk, branch ledger.VertexID, err error) {
	for attempt := 0; attempt < selectionAttempts; attempt++ {
		t1, ok1 := tp.selectTip()
		t2, ok2 := tp.selectTip()
		if !ok1 || !ok2 {
			continue
		}
		if t1 == t2 {
			continue
		}
		return t1, t2, nil
	}
	return ledger.GenesisVertexID, ledger.GenesisVertexID, ErrNoValidTips
}

// selectTip one weighted random walk, anchor to tip. Bounded by maxWalkLen
func (tp *TipPool) selectTip() (ledger.VertexID, bool) {
	cur := tp.randomAnchor()
	for step := 0; step < tp.maxWalkLen; step++ {
		next, ok := tp.weightedStep(cur)
		if !ok {
			break
		}
		cur = next
	}
	if cur == ledger.GenesisVertexID {
		return cur, false
	}
	v := tp.Tangle().GetVertex(cur)
	if v == nil || !v.IsSolid() || v.IsConflicting() {
		return cur, false
	}
	return cur, true
}

func (tp *TipPool) randomAnchor() ledger.VertexID {
	tp.mutex.RLock()
	defer tp.mutex.RUnlock()

	if len(tp.anchors) == 0 {
		// before the first milestone the walk starts at the origin
		return ledger.GenesisVertexID
	}
	return tp.anchors[tp.randIntn(len(tp.anchors))]
}

// weightedStep picks among eligible children with probability proportional to
// (approvalWeight+1)^bias. Weight counts may be slightly stale, acceptable here
func (tp *TipPool) weightedStep(from ledger.VertexID) (ledger.VertexID, bool) {
	children := tp.Tangle().Children(from)
	eligible := make([]ledger.VertexID, 0, len(children))
	weights := make([]float64, 0, len(children))
	total := float64(0)
	for _, childID := range children {
		child := tp.Tangle().GetVertex(childID)
		if child == nil || !child.IsSolid() || child.IsConflicting() {
			continue
		}
		w := math.Pow(float64(child.ApprovalWeight()+1), tp.biasExponent)
		eligible = append(eligible, childID)
		weights = append(weights, w)
		total += w
	}
	if len(eligible) == 0 {
		return from, false
	}
	r := tp.randFloat() * total
	for i := range eligible {
		r -= weights[i]
		if r <= 0 {
			return eligible[i], true
		}
	}
	return eligible[len(eligible)-1], true
}

func (tp *TipPool) randIntn(n int) int {
	tp.rndMutex.Lock()
	defer tp.rndMutex.Unlock()

	return tp.rnd.Intn(n)
}

func (tp *TipPool) randFloat() float64 {
	tp.rndMutex.Lock()
	defer tp.rndMutex.Unlock()

	return tp.rnd.Float64()
}
