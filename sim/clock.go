package sim

import (
	"errors"
	"sync"
	"time"
)

// Default deadlines for synchronous request-reply wrappers. A timeout only
// returns control to the caller; the clock keeps working.
const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultRunTimeout     = 10 * time.Second
)

// Errors returned by the clock's client API.
var (
	ErrTimeout    = errors.New("clock request timed out")
	ErrNilAction  = errors.New("event has no action")
	ErrBadTiming  = errors.New("timing must be At or After")
	ErrBadCycle   = errors.New("cycle must not be negative")
	ErrBadField   = errors.New("field must be FieldCycle, FieldFun or FieldTime")
	ErrBadValue   = errors.New("value does not match the updated field")
	ErrNotIdle    = errors.New("clock is stepping, running or resetting")
	ErrNotRunning = errors.New("clock is not running")
)

// State is the control state of a clock.
type State int

const (
	// StateIdle accepts scheduling, queries, Step, Run and Reset.
	StateIdle State = iota
	// StateRunning drives batch after batch until the run horizon.
	StateRunning
	// StateStopped marks a requested stop that takes effect at the next
	// batch boundary.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Field selects which part of a scheduled event an Update replaces.
type Field int

const (
	FieldCycle Field = iota
	FieldFun
	FieldTime
)

// Result reports the outcome of a Step, Run or Stop.
type Result struct {
	// Events is the number of actions executed.
	Events int
	// Time is the virtual time after the operation, or NoEventTime for a
	// Step on an empty queue.
	Time VTime
	// Stopped is set when a run ended through Stop rather than reaching
	// its horizon.
	Stopped bool
}

// Snapshot is a point-in-time copy of the clock's control state.
type Snapshot struct {
	State   State
	Now     VTime
	EvCount int
	TEnd    VTime
	Pending int
}

// A Clock owns an event queue and a virtual time. It runs as a single
// goroutine receiving requests from a channel, so its state is never shared
// directly. Dequeued batches execute on a separate worker goroutine, which
// keeps the clock responsive to scheduling and queries while actions run.
//
// Actions are a client contract: a panicking action is not recovered and
// tears the process down.
type Clock struct {
	HookableBase

	// CommandTimeout bounds synchronous wrappers except Run.
	CommandTimeout time.Duration
	// RunTimeout bounds the synchronous Run wrapper. Zero disables the
	// deadline.
	RunTimeout time.Duration

	nowLock sync.RWMutex
	now     VTime

	reqs      chan request
	batchDone chan VTime

	// The fields below are owned by the clock goroutine.
	eq        *EventQueue
	state     State
	executing bool
	evcount   int
	tend      VTime

	pendingStep chan stepReply
	pendingRun  chan stepReply
	pendingStop chan stepReply
}

type request interface{}

type eventReq struct {
	spec  EventSpec
	reply chan eventReply
}

type eventReply struct {
	id  EventID
	err error
}

type updateReq struct {
	id     EventID
	field  Field
	time   VTime
	action Action
	cycle  VTime
	reply  chan eventReply
}

type deleteReq struct {
	ids   []EventID
	reply chan struct{}
}

type queryEventsReq struct {
	reply chan []EventInfo
}

type queryStateReq struct {
	reply chan Snapshot
}

type stepReq struct {
	reply chan stepReply
}

type stepReply struct {
	res Result
	err error
}

type runReq struct {
	duration VTime
	reply    chan stepReply
}

type stopReq struct {
	reply chan stepReply
}

type resetReq struct {
	t0    VTime
	reply chan error
}

type shutdownReq struct {
	reply chan error
}

// NewClock creates a clock at virtual time t0 and starts its goroutine.
func NewClock(t0 VTime) *Clock {
	c := &Clock{
		CommandTimeout: DefaultCommandTimeout,
		RunTimeout:     DefaultRunTimeout,
		now:            t0,
		reqs:           make(chan request),
		batchDone:      make(chan VTime, 1),
		eq:             NewEventQueue(),
		tend:           t0,
	}

	go c.loop()

	return c
}

// CurrentTime returns the clock's virtual time.
func (c *Clock) CurrentTime() VTime {
	return c.readNow()
}

// Now is a shorthand for CurrentTime.
func (c *Clock) Now() VTime {
	return c.readNow()
}

func (c *Clock) readNow() VTime {
	c.nowLock.RLock()
	t := c.now
	c.nowLock.RUnlock()
	return t
}

func (c *Clock) writeNow(t VTime) {
	c.nowLock.Lock()
	c.now = t
	c.nowLock.Unlock()
}

// Event schedules an event. With Timing At the event is due at spec.Time;
// with After it is due at the clock's current time plus spec.Time. A
// positive spec.Cycle makes the event recurring. Events can be scheduled in
// any state, including while a run is in progress.
func (c *Clock) Event(spec EventSpec) (EventID, error) {
	if spec.Action == nil {
		return 0, ErrNilAction
	}
	if spec.Timing != At && spec.Timing != After {
		return 0, ErrBadTiming
	}
	if spec.Cycle < 0 {
		return 0, ErrBadCycle
	}

	req := eventReq{spec: spec, reply: make(chan eventReply, 1)}
	r, err := sendRecv(c, req, req.reply, c.CommandTimeout)
	if err != nil {
		return 0, err
	}
	return r.id, r.err
}

// EventAt schedules a one-shot event at absolute time t.
func (c *Clock) EventAt(f Action, t VTime) (EventID, error) {
	return c.Event(EventSpec{Action: f, Timing: At, Time: t})
}

// EventAfter schedules a one-shot event dt after the current time.
func (c *Clock) EventAfter(f Action, dt VTime) (EventID, error) {
	return c.Event(EventSpec{Action: f, Timing: After, Time: dt})
}

// Update replaces one field of a pending event. Updating an unknown id is a
// no-op. Accepted field/value pairs are FieldCycle/VTime, FieldFun/Action
// and FieldTime/VTime.
func (c *Clock) Update(id EventID, field Field, value interface{}) (EventID, error) {
	switch field {
	case FieldCycle:
		cycle, ok := value.(VTime)
		if !ok {
			return 0, ErrBadValue
		}
		return c.UpdateCycle(id, cycle)
	case FieldFun:
		f, ok := value.(Action)
		if !ok {
			return 0, ErrBadValue
		}
		return c.UpdateAction(id, f)
	case FieldTime:
		t, ok := value.(VTime)
		if !ok {
			return 0, ErrBadValue
		}
		return c.UpdateTime(id, t)
	}
	return 0, ErrBadField
}

// UpdateTime moves event id to absolute time t.
func (c *Clock) UpdateTime(id EventID, t VTime) (EventID, error) {
	return c.update(updateReq{id: id, field: FieldTime, time: t})
}

// UpdateAction replaces the action of event id.
func (c *Clock) UpdateAction(id EventID, f Action) (EventID, error) {
	if f == nil {
		return 0, ErrNilAction
	}
	return c.update(updateReq{id: id, field: FieldFun, action: f})
}

// UpdateCycle replaces the cycle of event id. A zero cycle makes the event
// one-shot again.
func (c *Clock) UpdateCycle(id EventID, cycle VTime) (EventID, error) {
	if cycle < 0 {
		return 0, ErrBadCycle
	}
	return c.update(updateReq{id: id, field: FieldCycle, cycle: cycle})
}

func (c *Clock) update(req updateReq) (EventID, error) {
	req.reply = make(chan eventReply, 1)
	r, err := sendRecv(c, req, req.reply, c.CommandTimeout)
	if err != nil {
		return 0, err
	}
	return r.id, r.err
}

// Delete removes the given events. Their actions will not execute, even if
// they are already part of the next due batch.
func (c *Clock) Delete(ids ...EventID) error {
	req := deleteReq{ids: ids, reply: make(chan struct{}, 1)}
	_, err := sendRecv(c, req, req.reply, c.CommandTimeout)
	return err
}

// Events returns a snapshot of all pending events ordered by id.
func (c *Clock) Events() ([]EventInfo, error) {
	req := queryEventsReq{reply: make(chan []EventInfo, 1)}
	return sendRecv(c, req, req.reply, c.CommandTimeout)
}

// State returns a snapshot of the clock's control state.
func (c *Clock) State() (Snapshot, error) {
	req := queryStateReq{reply: make(chan Snapshot, 1)}
	return sendRecv(c, req, req.reply, c.CommandTimeout)
}

// Step pops the next due batch, executes it, and reports how many actions
// ran and the batch time. On an empty queue Step reports zero events at
// NoEventTime without advancing the clock. Step requires an idle clock.
func (c *Clock) Step() (Result, error) {
	req := stepReq{reply: make(chan stepReply, 1)}
	r, err := sendRecv(c, req, req.reply, c.CommandTimeout)
	if err != nil {
		return Result{}, err
	}
	return r.res, r.err
}

// Run drives batch after batch until the clock's time reaches now+duration
// or the queue drains, then reports the executed event count and the final
// time. The final time never falls short of the horizon, even if the queue
// drained early. Run requires an idle clock.
func (c *Clock) Run(duration VTime) (Result, error) {
	req := runReq{duration: duration, reply: make(chan stepReply, 1)}
	r, err := sendRecv(c, req, req.reply, c.RunTimeout)
	if err != nil {
		return Result{}, err
	}
	return r.res, r.err
}

// Stop requests a graceful stop of a running clock. It takes effect at the
// next batch boundary; in-flight actions are not preempted. Both the Stop
// caller and the pending Run caller receive the stopped result.
func (c *Clock) Stop() (Result, error) {
	req := stopReq{reply: make(chan stepReply, 1)}
	r, err := sendRecv(c, req, req.reply, c.CommandTimeout)
	if err != nil {
		return Result{}, err
	}
	return r.res, r.err
}

// Reset wipes the event queue and restarts the clock at t0. It requires an
// idle clock.
func (c *Clock) Reset(t0 VTime) error {
	req := resetReq{t0: t0, reply: make(chan error, 1)}
	r, err := sendRecv(c, req, req.reply, c.CommandTimeout)
	if err != nil {
		return err
	}
	return r
}

// Shutdown terminates the clock goroutine. It requires an idle clock.
func (c *Clock) Shutdown() error {
	req := shutdownReq{reply: make(chan error, 1)}
	r, err := sendRecv(c, req, req.reply, c.CommandTimeout)
	if err != nil {
		return err
	}
	return r
}

// sendRecv submits a request and waits for its reply, giving up after the
// deadline. A non-positive deadline waits forever. Reply channels are
// buffered so the clock never blocks on a caller that gave up.
func sendRecv[T any](c *Clock, req request, reply chan T, d time.Duration) (T, error) {
	var zero T

	if d <= 0 {
		c.reqs <- req
		return <-reply, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case c.reqs <- req:
	case <-timer.C:
		return zero, ErrTimeout
	}

	select {
	case r := <-reply:
		return r, nil
	case <-timer.C:
		return zero, ErrTimeout
	}
}

func (c *Clock) loop() {
	for {
		select {
		case req := <-c.reqs:
			if c.handle(req) {
				return
			}
		case t := <-c.batchDone:
			c.onBatchDone(t)
		}
	}
}

func (c *Clock) handle(req request) (shutdown bool) {
	switch m := req.(type) {
	case eventReq:
		t := m.spec.Time
		if m.spec.Timing == After {
			t = c.readNow() + m.spec.Time
		}
		id := c.eq.Add(m.spec.Action, t, m.spec.Cycle)
		m.reply <- eventReply{id: id}

	case updateReq:
		switch m.field {
		case FieldTime:
			c.eq.UpdateTime(m.id, m.time)
		case FieldFun:
			c.eq.UpdateAction(m.id, m.action)
		case FieldCycle:
			c.eq.UpdateCycle(m.id, m.cycle)
		}
		m.reply <- eventReply{id: m.id}

	case deleteReq:
		c.eq.Delete(m.ids...)
		m.reply <- struct{}{}

	case queryEventsReq:
		m.reply <- c.eq.Snapshot()

	case queryStateReq:
		m.reply <- Snapshot{
			State:   c.state,
			Now:     c.readNow(),
			EvCount: c.evcount,
			TEnd:    c.tend,
			Pending: c.eq.Len(),
		}

	case stepReq:
		if c.state != StateIdle || c.executing {
			m.reply <- stepReply{err: ErrNotIdle}
			return false
		}

		t, actions, ids := c.eq.Next()
		if t == NoEventTime {
			m.reply <- stepReply{res: Result{Events: 0, Time: NoEventTime}}
			return false
		}

		c.evcount = len(actions)
		c.pendingStep = m.reply
		c.dispatch(t, actions, ids)

	case runReq:
		if c.state != StateIdle || c.executing {
			m.reply <- stepReply{err: ErrNotIdle}
			return false
		}

		c.tend = c.readNow() + m.duration
		c.evcount = 0
		c.state = StateRunning
		c.pendingRun = m.reply
		c.advanceRun()

	case stopReq:
		if c.state != StateRunning {
			m.reply <- stepReply{err: ErrNotRunning}
			return false
		}

		c.state = StateStopped
		c.pendingStop = m.reply

	case resetReq:
		if c.state != StateIdle || c.executing {
			m.reply <- ErrNotIdle
			return false
		}

		c.eq = NewEventQueue()
		c.writeNow(m.t0)
		c.evcount = 0
		c.tend = m.t0
		m.reply <- nil

	case shutdownReq:
		if c.state != StateIdle || c.executing {
			m.reply <- ErrNotIdle
			return false
		}

		m.reply <- nil
		return true
	}

	return false
}

// advanceRun pops the next batch of a run, or finishes the run if the queue
// has drained.
func (c *Clock) advanceRun() {
	t, actions, ids := c.eq.Next()
	if t == NoEventTime {
		c.finishRun(c.readNow())
		return
	}

	c.evcount += len(actions)
	c.dispatch(t, actions, ids)
}

// dispatch advances the clock to the batch time and hands the batch to a
// worker goroutine. An all-deleted batch has no actions; its completion is
// self-delivered without spawning a worker.
func (c *Clock) dispatch(t VTime, actions []Action, ids []EventID) {
	c.writeNow(t)
	c.executing = true

	if len(actions) == 0 {
		c.batchDone <- t
		return
	}

	go c.executeBatch(t, actions, ids)
}

func (c *Clock) onBatchDone(t VTime) {
	c.executing = false

	if c.pendingStep != nil {
		reply := c.pendingStep
		c.pendingStep = nil
		reply <- stepReply{res: Result{Events: c.evcount, Time: t}}
		return
	}

	if c.state == StateStopped {
		res := Result{Events: c.evcount, Time: t, Stopped: true}
		c.state = StateIdle

		if c.pendingStop != nil {
			c.pendingStop <- stepReply{res: res}
			c.pendingStop = nil
		}
		if c.pendingRun != nil {
			c.pendingRun <- stepReply{res: res}
			c.pendingRun = nil
		}
		return
	}

	if c.state != StateRunning {
		return
	}

	if t >= c.tend || c.eq.PeekTime() == NoEventTime {
		c.finishRun(t)
		return
	}

	c.advanceRun()
}

// finishRun clamps the clock up to the run horizon and notifies the run
// caller, so a run always finishes at or past its horizon even if the
// queue drained early.
func (c *Clock) finishRun(t VTime) {
	tFinal := c.tend
	if t > tFinal {
		tFinal = t
	}

	c.writeNow(tFinal)
	c.state = StateIdle

	if c.pendingRun != nil {
		c.pendingRun <- stepReply{res: Result{Events: c.evcount, Time: tFinal}}
		c.pendingRun = nil
	}
}

// executeBatch is the per-batch worker. It starts all actions of the batch
// in insertion order, runs them in parallel, joins them, and signals the
// clock. Completion order within a batch is not defined.
func (c *Clock) executeBatch(t VTime, actions []Action, ids []EventID) {
	batchCtx := HookCtx{
		Domain: c,
		Pos:    HookPosBeforeBatch,
		Item:   BatchInfo{Time: t, IDs: ids},
	}
	c.InvokeHook(batchCtx)

	if len(actions) == 1 {
		c.runAction(t, ids[0], actions[0])
	} else {
		var wg sync.WaitGroup
		for i := range actions {
			wg.Add(1)
			go func(id EventID, f Action) {
				c.runAction(t, id, f)
				wg.Done()
			}(ids[i], actions[i])
		}
		wg.Wait()
	}

	batchCtx.Pos = HookPosAfterBatch
	c.InvokeHook(batchCtx)

	c.batchDone <- t
}

func (c *Clock) runAction(t VTime, id EventID, f Action) {
	ctx := HookCtx{
		Domain: c,
		Pos:    HookPosBeforeAction,
		Item:   ActionInfo{ID: id, Time: t},
	}
	c.InvokeHook(ctx)

	ret := f(c)

	ctx.Pos = HookPosAfterAction
	ctx.Detail = ret
	c.InvokeHook(ctx)
}
