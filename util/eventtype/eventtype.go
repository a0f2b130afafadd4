package eventtype

import (
	"fmt"
	"sync"

	"github.com/prateekvishnu/bee/util"
)

type (
	EventCode int

	eventType struct {
		name          string
		dataTypeName  string
		checkDataType func(any) bool
		makeHandler   func(any) (func(any), error)
	}
)

var (
	registryMutex sync.RWMutex
	eventTypes    = make([]eventType, 0)
)

// RegisterNew registers new event type globally. Returns newly registered EventCode
func RegisterNew[T any](name string) EventCode {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	var nullT T

	ret := EventCode(len(eventTypes))
	eventTypes = append(eventTypes, eventType{
		name:         name,
		dataTypeName: fmt.Sprintf("%T", nullT),
		checkDataType: func(arg any) bool {
			_, ok := arg.(T)
			return ok
		},
		makeHandler: func(fun any) (func(any), error) {
			handler, ok := fun.(func(T))
			if !ok {
				var nullHandler func(T)
				return nil, fmt.Errorf("wrong event handler type. Event: %s(%d), expected: %s, got: %T",
					name, ret, fmt.Sprintf("%T", nullHandler), fun)
			}
			return func(arg any) {
				argConv, ok := arg.(T)
				util.Assertf(ok, "wrong argument type of the event: expected '%T', got: '%T'", nullT, arg)
				handler(argConv)
			}, nil
		},
	})
	return ret
}

func MakeHandler(code EventCode, fun any) (func(any), error) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	if int(code) >= len(eventTypes) {
		return nil, fmt.Errorf("wrong event code %d", code)
	}
	return eventTypes[code].makeHandler(fun)
}

func (c EventCode) String() string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	if int(c) >= len(eventTypes) {
		return fmt.Sprintf("wrong(%d)", int(c))
	}
	return fmt.Sprintf("%s(%d)", eventTypes[c].name, int(c))
}
