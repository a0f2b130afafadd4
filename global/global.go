package global

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prateekvishnu/bee/util"
	"github.com/prateekvishnu/bee/util/set"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Global struct {
	*zap.SugaredLogger
	ctx             context.Context
	stopFun         context.CancelFunc
	logStopOnce     *sync.Once
	workProcessesWG sync.WaitGroup
	components      sync.Map
	metrics         *prometheus.Registry
	enabledTrace    atomic.Bool
	traceTagsMutex  sync.RWMutex
	traceTags       set.Set[string]
}

func New() *Global {
	ctx, cancelFun := context.WithCancel(context.Background())
	return &Global{
		ctx:           ctx,
		stopFun:       cancelFun,
		SugaredLogger: NewLogger("", zapcore.InfoLevel, nil, ""),
		traceTags:     set.New[string](),
		metrics:       prometheus.NewRegistry(),
		logStopOnce:   &sync.Once{},
	}
}

// NewFromConfig expects viper initialized
func NewFromConfig() *Global {
	ctx, cancelFun := context.WithCancel(context.Background())
	return &Global{
		ctx:           ctx,
		stopFun:       cancelFun,
		SugaredLogger: NewLogger("", logLevelFromConfig(), logOutputsFromConfig(), ""),
		traceTags:     set.New[string](),
		metrics:       prometheus.NewRegistry(),
		logStopOnce:   &sync.Once{},
	}
}

func (l *Global) Ctx() context.Context {
	return l.ctx
}

func (l *Global) Stop() {
	l.logStopOnce.Do(func() {
		l.Log().Info("global stop invoked..")
	})
	l.stopFun()
}

func (l *Global) MarkWorkProcessStarted(name string) {
	_, already := l.components.LoadOrStore(name, struct{}{})
	util.Assertf(!already, "work process '%s' has already been started", name)
	l.workProcessesWG.Add(1)
}

func (l *Global) MarkWorkProcessStopped(name string) {
	_, ok := l.components.Load(name)
	util.Assertf(ok, "work process '%s' is not among started", name)
	l.components.Delete(name)
	l.workProcessesWG.Done()
}

func (l *Global) MustWaitAllWorkProcessesStop(timeout ...time.Duration) {
	doneChan := make(chan struct{})
	go func() {
		l.workProcessesWG.Wait()
		close(doneChan)
	}()
	if len(timeout) == 0 {
		<-doneChan
		return
	}
	select {
	case <-doneChan:
	case <-time.After(timeout[0]):
		ln := make([]string, 0)
		l.components.Range(func(key, _ any) bool {
			ln = append(ln, key.(string))
			return true
		})
		l.Log().Errorf("MustWaitAllWorkProcessesStop: timeout. Still running: %s", strings.Join(ln, ", "))
	}
}

// RepeatInBackground repeats closure until it returns false or global context is closed
func (l *Global) RepeatInBackground(name string, period time.Duration, fun func() bool, skipFirst ...bool) {
	l.MarkWorkProcessStarted(name)
	go func() {
		defer l.MarkWorkProcessStopped(name)

		if len(skipFirst) == 0 || !skipFirst[0] {
			if !fun() {
				return
			}
		}
		for {
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(period):
				if !fun() {
					return
				}
			}
		}
	}()
}

func (l *Global) Log() *zap.SugaredLogger {
	return l.SugaredLogger
}

func (l *Global) MetricsRegistry() *prometheus.Registry {
	return l.metrics
}

func (l *Global) Assertf(cond bool, format string, args ...any) {
	if !cond {
		l.SugaredLogger.Fatalf("assertion failed:: "+format, util.EvalLazyArgs(args...)...)
	}
}

func (l *Global) AssertNoError(err error, prefix ...string) {
	if err != nil {
		pref := "error: "
		if len(prefix) > 0 {
			pref = strings.Join(prefix, " ") + ": "
		}
		l.SugaredLogger.Fatalf(pref+"%v", err)
	}
}

func (l *Global) StartTracingTags(tags ...string) {
	for _, tag := range tags {
		l.traceTagsMutex.Lock()
		for _, t := range strings.Split(tag, ",") {
			l.traceTags.Insert(strings.TrimSpace(t))
		}
		l.enabledTrace.Store(true)
		l.traceTagsMutex.Unlock()

		l.Tracef(tag, "trace tag enabled")
	}
}

func (l *Global) StopTracingTag(tag string) {
	l.traceTagsMutex.Lock()
	defer l.traceTagsMutex.Unlock()

	l.traceTags.Remove(tag)
	if len(l.traceTags) == 0 {
		l.enabledTrace.Store(false)
	}
}

func (l *Global) Tracef(tag string, format string, args ...any) {
	if !l.enabledTrace.Load() {
		return
	}

	l.traceTagsMutex.RLock()
	defer l.traceTagsMutex.RUnlock()

	for _, t := range strings.Split(tag, ",") {
		if l.traceTags.Contains(t) {
			l.SugaredLogger.Infof("TRACE(%s) %s", t, fmt.Sprintf(format, util.EvalLazyArgs(args...)...))
			return
		}
	}
}
