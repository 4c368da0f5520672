package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A handle finished post-construction and its resource is usable.
	/* Context usage:
	 * Data: resources.ResourceEvent
	 */
	EVENT_CODE_RESOURCE_ADDED SystemEventCode = 0x10

	// A handle's resource was unloaded or the handle left the cache.
	/* Context usage:
	 * Data: resources.ResourceEvent
	 */
	EVENT_CODE_RESOURCE_DELETED SystemEventCode = 0x11

	// A handle was accessed without a resource and a reload was requested.
	EVENT_CODE_RESOURCE_NEEDS_RELOAD SystemEventCode = 0x12

	// A load task failed; the handle is back in the needs-reload state.
	EVENT_CODE_RESOURCE_LOAD_FAILED SystemEventCode = 0x13

	// The first load started while none were in flight.
	EVENT_CODE_RESOURCES_LOADING_STARTED SystemEventCode = 0x14

	// The last in-flight load finished.
	EVENT_CODE_RESOURCES_LOADING_DONE SystemEventCode = 0x15

	// A watched asset file was created or written.
	/* Context usage:
	 * Data: string (full path)
	 */
	EVENT_CODE_FILE_CHANGED SystemEventCode = 0x20

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type EventContext struct {
	Type   SystemEventCode
	Sender interface{}
	Data   interface{}
}

// Should return true if handled.
type FnOnEvent func(listener interface{}, context EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// State structure.
type eventSystemState struct {
	mu sync.RWMutex
	// Lookup table for event codes.
	registered [MAX_MESSAGE_CODES]eventCodeEntry
}

var eventMutex sync.RWMutex
var eventState *eventSystemState = nil

func EventSystemInitialize() bool {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{}
	return true
}

func EventSystemShutdown() error {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	// Free the events arrays. And objects pointed to should be destroyed on their own.
	eventState = nil
	return nil
}

func state() *eventSystemState {
	eventMutex.RLock()
	defer eventMutex.RUnlock()
	return eventState
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	s := state()
	if s == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.registered[code].events {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	s.registered[code].events = append(s.registered[code].events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	s := state()
	if s == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.registered[code].events
	for i, e := range events {
		if e.listener == listener {
			s.registered[code].events = append(events[:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * Callbacks run on the firing goroutine.
 */
func EventFire(context EventContext) bool {
	s := state()
	if s == nil || context.Type < 0 || int(context.Type) >= MAX_MESSAGE_CODES {
		return false
	}
	s.mu.RLock()
	events := make([]*registeredEvent, len(s.registered[context.Type].events))
	copy(events, s.registered[context.Type].events)
	s.mu.RUnlock()

	for _, e := range events {
		if e.callback(e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
