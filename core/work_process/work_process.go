// Package work_process wraps a queue-fed consumer goroutine into a node
// component: started against the global context, registered on the global
// wait group, stopped when the context closes.
// The single consumer gives every work process single-writer discipline over
// the state it owns
package work_process

import (
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/util/queue"
)

type (
	Environment interface {
		global.NodeGlobal
	}

	WorkProcess[T any] struct {
		Environment
		*queue.Queue[T]
		Name     string
		consumer func(inp T)
	}
)

func New[T any](env Environment, name string, consumer func(inp T)) *WorkProcess[T] {
	return &WorkProcess[T]{
		Environment: env,
		Name:        name,
		consumer:    consumer,
	}
}

func (wp *WorkProcess[T]) Start() {
	wp.Queue = queue.New(wp.consumer)
	wp.MarkWorkProcessStarted(wp.Name)
	wp.Log().Infof("[%s] STARTED", wp.Name)

	go func() {
		// the work process stops by observing the closing global context
		<-wp.Ctx().Done()

		wp.Queue.Close()
		wp.MarkWorkProcessStopped(wp.Name)
		wp.Log().Infof("[%s] STOPPED", wp.Name)
	}()
}
