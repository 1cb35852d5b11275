// Package sched implements a textbook CPU scheduler: a single-level
// Scheduler with five dispatching policies and a MultilevelQueue that
// chains Schedulers into a multilevel feedback queue.
//
// The package is sequential. Nothing in it locks, sleeps or logs; callers
// that share a Scheduler or MultilevelQueue across goroutines must
// serialize access themselves.
package sched

import "math/rand/v2"

// OpCode is the payload a Process carries for its consumer.
type OpCode string

const (
	// Inert is ordinary work.
	Inert OpCode = "inert"
	// Shutdown asks the consumer of a dispatched process to stop.
	// The scheduler treats it like any other process.
	Shutdown OpCode = "shutdown"
)

// NoAffinity marks a process that may run on any processor.
const NoAffinity int32 = -1

// Process describes one schedulable unit of work.
type Process struct {
	// ID identifies the process. It may repeat across admissions of a
	// recurring task; the SRT prediction table is keyed by it.
	ID uint32 `json:"id"`
	// Priority is lower for more urgent work.
	Priority int32 `json:"priority"`
	// TimeUnits is the remaining requested runtime.
	TimeUnits int `json:"time_units"`
	// StaticTimeUnits is the runtime requested at creation.
	StaticTimeUnits int    `json:"static_time_units"`
	Code            OpCode `json:"code"`
	// Affinity restricts the process to one processor, or NoAffinity.
	// The scheduler never reads it.
	Affinity int32 `json:"affinity"`
}

// NewProcess creates a process with an explicit id.
func NewProcess(id uint32, timeUnits int, code OpCode) Process {
	if timeUnits < 0 {
		timeUnits = 0
	}
	return Process{
		ID:              id,
		TimeUnits:       timeUnits,
		StaticTimeUnits: timeUnits,
		Code:            code,
		Affinity:        NoAffinity,
	}
}

// Spawn creates an inert process with a random id.
func Spawn(timeUnits int) Process {
	return NewProcess(rand.Uint32(), timeUnits, Inert)
}

// Dummy creates an inert process that needs no time at all.
func Dummy(id uint32) Process {
	return NewProcess(id, 0, Inert)
}

// ShutdownProcess creates a zero-length process carrying the Shutdown code.
func ShutdownProcess() Process {
	return NewProcess(rand.Uint32(), 0, Shutdown)
}

// WithPriority returns a copy of p with the given priority.
func (p Process) WithPriority(priority int32) Process {
	p.Priority = priority
	return p
}

// WithAffinity returns a copy of p pinned to cpu.
func (p Process) WithAffinity(cpu uint32) Process {
	p.Affinity = int32(cpu)
	return p
}

// HasAffinity reports whether p is pinned to a processor.
func (p Process) HasAffinity() bool {
	return p.Affinity != NoAffinity
}

// IsShutdown reports whether p carries the Shutdown code.
func (p Process) IsShutdown() bool {
	return p.Code == Shutdown
}
