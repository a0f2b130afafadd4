// Package node assembles the bee node: configuration, databases, the consensus
// workflow and metrics exposure, plus the shutdown discipline
package node

import (
	"time"

	"github.com/prateekvishnu/bee/core/milestones"
	"github.com/prateekvishnu/bee/core/workflow"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/metrics"
	"github.com/prateekvishnu/bee/util"
	"github.com/spf13/viper"
)

type BeeNode struct {
	*global.Global
	workflow  *workflow.Workflow
	started   time.Time
	dbClosing chan struct{}
}

func init() {
	viper.SetConfigName("bee")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()
}

func New() *BeeNode {
	return &BeeNode{
		Global:    global.NewFromConfig(),
		started:   time.Now(),
		dbClosing: make(chan struct{}),
	}
}

func (n *BeeNode) Workflow() *workflow.Workflow {
	return n.workflow
}

func (n *BeeNode) Run() {
	n.Log().Info(global.BannerString())
	n.StartTracingTags(viper.GetStringSlice("trace_tags")...)

	err := util.CatchPanicOrError(func() error {
		stateStore := n.openStateDB()

		verifier, err := milestones.NewVerifierFromConfig()
		if err != nil {
			return err
		}
		n.workflow, err = workflow.Start(n.Global, stateStore, nil, verifier)
		return err
	})
	if err != nil {
		n.Log().Fatalf("failed to start the node: %v", err)
	}

	metrics.Start(n)
	n.startSyncStatusLoop()
	n.Log().Infof("bee node has been started (%v)", time.Since(n.started))
}

func (n *BeeNode) startSyncStatusLoop() {
	n.RepeatInBackground("sync_status_loop", 10*time.Second, func() bool {
		latestSeen, latestApplied := n.workflow.SyncStatus()
		if latestSeen == latestApplied {
			n.Log().Infof("node is synced at milestone %s, %d vertices, %d tips",
				latestApplied.String(), n.workflow.Tangle().NumVertices(), n.workflow.TipPool().NumTips())
		} else {
			n.Log().Infof("node is syncing: applied %s of seen %s", latestApplied.String(), latestSeen.String())
		}
		return true
	}, true)
}

// WaitStop blocks until all work processes have stopped, then closes databases
func (n *BeeNode) WaitStop() {
	n.MustWaitAllWorkProcessesStop(10 * time.Second)
	if fname := viper.GetString("debug.save_dag"); fname != "" && n.workflow != nil {
		if err := n.workflow.Tangle().SaveGraph(fname); err == nil {
			n.Log().Infof("DOT rendering of the tangle saved to '%s.gv'", fname)
		}
	}
	close(n.dbClosing)
	n.waitDBClosed()
	n.Log().Info("bee node stopped")
}
