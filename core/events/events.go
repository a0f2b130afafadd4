// Package events delivers confirmation and solidification events to API and
// dashboard collaborators asynchronously, preserving the order of posting
package events

import (
	"github.com/prateekvishnu/bee/core/work_process"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/tangle/vertex"
	"github.com/prateekvishnu/bee/util"
	"github.com/prateekvishnu/bee/util/eventtype"
)

type (
	Input struct {
		cmdCode   byte
		eventCode eventtype.EventCode
		arg       any
	}

	environment interface {
		work_process.Environment
	}

	Events struct {
		*work_process.WorkProcess[Input]
		eventHandlers map[eventtype.EventCode][]func(any)
	}

	// VertexConfirmed emitted for every vertex of an applied milestone,
	// accepted or confirmed-as-rejected
	VertexConfirmed struct {
		VertexID       ledger.VertexID
		MilestoneIndex ledger.MilestoneIndex
		ConflictReason vertex.ConflictReason
	}

	MilestoneApplied struct {
		Index        ledger.MilestoneIndex
		NumConfirmed int
		NumConflicts int
	}
)

var (
	EventVertexSolid      = eventtype.RegisterNew[ledger.VertexID]("vertex.solid")
	EventVertexConfirmed  = eventtype.RegisterNew[VertexConfirmed]("vertex.confirmed")
	EventMilestoneApplied = eventtype.RegisterNew[MilestoneApplied]("milestone.applied")
)

const (
	cmdCodeAddHandler = byte(iota)
	cmdCodePostEvent
)

const (
	Name     = "events"
	TraceTag = Name
)

func New(env environment) *Events {
	ret := &Events{
		eventHandlers: make(map[eventtype.EventCode][]func(any)),
	}
	ret.WorkProcess = work_process.New[Input](env, Name, ret.consume)
	ret.WorkProcess.Start()
	return ret
}

func (d *Events) consume(inp Input) {
	switch inp.cmdCode {
	case cmdCodeAddHandler:
		d.eventHandlers[inp.eventCode] = append(d.eventHandlers[inp.eventCode], inp.arg.(func(any)))
		d.Tracef(TraceTag, "added event handler for event code '%s'", inp.eventCode.String)
	case cmdCodePostEvent:
		d.Tracef(TraceTag, "posted event '%s'", inp.eventCode.String)
		for _, fun := range d.eventHandlers[inp.eventCode] {
			fun(inp.arg)
		}
	}
}

// OnEvent is async
func (d *Events) OnEvent(eventCode eventtype.EventCode, fun any) {
	handler, err := eventtype.MakeHandler(eventCode, fun)
	util.AssertNoError(err)
	d.Queue.Push(Input{
		cmdCode:   cmdCodeAddHandler,
		eventCode: eventCode,
		arg:       handler,
	})
}

func (d *Events) PostEvent(eventCode eventtype.EventCode, arg any) {
	d.Queue.Push(Input{
		cmdCode:   cmdCodePostEvent,
		eventCode: eventCode,
		arg:       arg,
	})
}
