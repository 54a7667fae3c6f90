package sim

import (
	"container/heap"
	"log"
)

// EventQueue is a time-priority queue of events indexed by id. Events are
// grouped into buckets of quantized time (see TimeResolution); the queue
// supports insertion, keyed mutation, lazy deletion, and extraction of the
// next batch of simultaneously due events.
//
// The queue keeps three coupled views: a monotonic id counter, an id->record
// map holding event content, and a priority index from bucket key to the
// ids scheduled at that quantized time. Deletion removes the record only;
// dangling ids left in buckets are filtered out during extraction.
type EventQueue struct {
	lastID  EventID
	events  map[EventID]*eventRecord
	buckets map[int64]*bucket
	order   bucketHeap
}

type bucket struct {
	key  int64
	time VTime
	ids  []EventID

	heapIndex int
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		events:  make(map[EventID]*eventRecord),
		buckets: make(map[int64]*bucket),
	}
	heap.Init(&q.order)
	return q
}

// Add schedules action f at time t and returns the assigned id. A positive
// cycle makes the event recurring.
func (q *EventQueue) Add(f Action, t VTime, cycle VTime) EventID {
	if f == nil {
		log.Panic("adding an event without an action")
	}
	if cycle < 0 {
		log.Panic("event cycle must not be negative")
	}

	q.lastID++
	id := q.lastID
	q.events[id] = &eventRecord{time: t, action: f, cycle: cycle}
	q.insert(id, t)

	return id
}

// LastID returns the id assigned by the most recent Add.
func (q *EventQueue) LastID() EventID {
	return q.lastID
}

// Len returns the number of live events.
func (q *EventQueue) Len() int {
	return len(q.events)
}

// UpdateTime moves event id to time t, re-homing it in the priority index.
// Unknown ids leave the queue unchanged.
func (q *EventQueue) UpdateTime(id EventID, t VTime) {
	rec, ok := q.events[id]
	if !ok {
		return
	}

	q.remove(id, bucketKey(rec.time))
	rec.time = t
	q.insert(id, t)
}

// UpdateAction replaces the action of event id. Unknown ids leave the
// queue unchanged.
func (q *EventQueue) UpdateAction(id EventID, f Action) {
	if rec, ok := q.events[id]; ok {
		rec.action = f
	}
}

// UpdateCycle replaces the cycle of event id. Unknown ids leave the queue
// unchanged.
func (q *EventQueue) UpdateCycle(id EventID, cycle VTime) {
	if rec, ok := q.events[id]; ok {
		rec.cycle = cycle
	}
}

// Delete removes the given events. Only the event records are dropped; ids
// left behind in buckets are filtered lazily by Next, so deletion does not
// scan the priority index.
func (q *EventQueue) Delete(ids ...EventID) {
	for _, id := range ids {
		delete(q.events, id)
	}
}

// Next extracts the earliest bucket and returns its due time, the live
// actions in insertion order, and their ids. Recurring events are put back
// at dueTime+cycle; one-shot events are consumed. On an empty queue Next
// returns NoEventTime and no actions.
func (q *EventQueue) Next() (dueTime VTime, actions []Action, ids []EventID) {
	if q.order.Len() == 0 {
		return NoEventTime, nil, nil
	}

	b := heap.Pop(&q.order).(*bucket)
	delete(q.buckets, b.key)

	for _, id := range b.ids {
		rec, ok := q.events[id]
		if !ok {
			// deleted while waiting
			continue
		}

		actions = append(actions, rec.action)
		ids = append(ids, id)

		if rec.cyclic() {
			rec.time = b.time + rec.cycle
			q.insert(id, rec.time)
		} else {
			delete(q.events, id)
		}
	}

	return b.time, actions, ids
}

// PeekTime returns the due time of the earliest bucket without extracting
// it, or NoEventTime if the queue is empty.
func (q *EventQueue) PeekTime() VTime {
	if q.order.Len() == 0 {
		return NoEventTime
	}
	return q.order[0].time
}

// Snapshot returns a copy of all live events ordered by id.
func (q *EventQueue) Snapshot() []EventInfo {
	infos := make([]EventInfo, 0, len(q.events))
	for id := EventID(1); id <= q.lastID; id++ {
		if rec, ok := q.events[id]; ok {
			infos = append(infos, EventInfo{ID: id, Time: rec.time, Cycle: rec.cycle})
		}
	}
	return infos
}

func (q *EventQueue) insert(id EventID, t VTime) {
	key := bucketKey(t)

	if b, ok := q.buckets[key]; ok {
		b.ids = append(b.ids, id)
		return
	}

	b := &bucket{key: key, time: t, ids: []EventID{id}}
	q.buckets[key] = b
	heap.Push(&q.order, b)
}

// remove takes id out of the bucket at key. The bucket's recorded time is
// left untouched; the remaining ids keep their own times.
func (q *EventQueue) remove(id EventID, key int64) {
	b, ok := q.buckets[key]
	if !ok {
		return
	}

	kept := b.ids[:0]
	for _, other := range b.ids {
		if other != id {
			kept = append(kept, other)
		}
	}
	b.ids = kept

	if len(b.ids) == 0 {
		heap.Remove(&q.order, b.heapIndex)
		delete(q.buckets, key)
	}
}

// bucketHeap orders buckets by key; container/heap keeps the minimum in
// front.
type bucketHeap []*bucket

func (h bucketHeap) Len() int {
	return len(h)
}

func (h bucketHeap) Less(i, j int) bool {
	return h[i].key < h[j].key
}

func (h bucketHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *bucketHeap) Push(x interface{}) {
	b := x.(*bucket)
	b.heapIndex = len(*h)
	*h = append(*h, b)
}

func (h *bucketHeap) Pop() interface{} {
	old := *h
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return b
}
