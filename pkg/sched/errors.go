package sched

import "errors"

// Programming errors. The scheduler panics with these values so a caller
// that wants to survive them can recover and match with errors.Is.
var (
	// ErrEmptySchedule is raised by the unchecked accessors when nothing is current.
	ErrEmptySchedule = errors.New("sched: no process is scheduled")
	// ErrMisconfiguredQueue is raised when a MultilevelQueue has no levels.
	ErrMisconfiguredQueue = errors.New("sched: multilevel queue has no levels")
	// ErrLevelsSealed is raised when a level is added after queueing began.
	ErrLevelsSealed = errors.New("sched: multilevel queue levels are sealed")
	// ErrMissingPrediction means an admitted id has no prediction entry.
	ErrMissingPrediction = errors.New("sched: missing prediction entry")
)
