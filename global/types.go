package global

import (
	"context"
	"time"

	"github.com/lunfardo314/unitrie/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type (
	Logging interface {
		Log() *zap.SugaredLogger
		Tracef(tag string, format string, args ...any)
		Assertf(cond bool, format string, args ...any)
		AssertNoError(err error, prefix ...string)
	}

	// NodeGlobal environment shared by all work processes of the node
	NodeGlobal interface {
		Logging
		Ctx() context.Context
		Stop()
		MarkWorkProcessStarted(name string)
		MarkWorkProcessStopped(name string)
		RepeatInBackground(name string, period time.Duration, fun func() bool, skipFirst ...bool) // runs background goroutine
		MetricsRegistry() *prometheus.Registry
	}

	// StateStore where the ledger state and the tangle metadata live.
	// The concrete implementation is either badger (node) or in-memory (tests)
	StateStore interface {
		common.KVReader
		common.BatchedUpdatable
		common.Traversable
	}
)
