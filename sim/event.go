package sim

// VTime is a point in simulated time. Time is virtual: it only advances
// when the clock extracts events, and it has no relation to wall-clock time.
type VTime float64

// TimeResolution is the quantization factor for bucket keys. Two events
// whose times agree after truncation to 1/1000 units share a bucket and
// execute in the same batch.
const TimeResolution = 1000

// NoEventTime is the time reported when there is nothing left to extract.
const NoEventTime VTime = -9999

// EventID identifies a scheduled event within one clock. IDs start at 1 and
// grow monotonically; they are never reused until the clock is reset, which
// starts numbering again at 1.
type EventID int64

// An Action is the executable payload of an event. It receives the owning
// clock so it can schedule follow-up events while it runs. The clock does not
// use the return value itself; it passes it to AfterAction hooks as
// HookCtx.Detail.
type Action func(c *Clock) any

// Timing selects how an event's time specification is interpreted.
type Timing int

const (
	// At schedules at the given absolute virtual time.
	At Timing = iota
	// After schedules relative to the clock's current time.
	After
)

// EventSpec describes an event to be scheduled on a clock.
//
// Cycle, when positive, makes the event recurring: after each execution at
// time t it is rescheduled at t+Cycle. A zero Cycle means one-shot.
type EventSpec struct {
	Action Action
	Timing Timing
	Time   VTime
	Cycle  VTime
}

// EventInfo is a read-only snapshot of one pending event.
type EventInfo struct {
	ID    EventID
	Time  VTime
	Cycle VTime
}

// eventRecord is the authoritative store of one event's content.
type eventRecord struct {
	time   VTime
	action Action
	cycle  VTime
}

func (r *eventRecord) cyclic() bool {
	return r.cycle > 0
}

// bucketKey quantizes a time to its bucket key.
func bucketKey(t VTime) int64 {
	return int64(float64(t) * TimeResolution)
}
