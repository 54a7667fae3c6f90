package sim

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookPosBeforeBatch triggers before a batch of due actions starts.
var HookPosBeforeBatch = &HookPos{Name: "BeforeBatch"}

// HookPosAfterBatch triggers after all actions of a batch have finished.
var HookPosAfterBatch = &HookPos{Name: "AfterBatch"}

// HookPosBeforeAction triggers before a single action runs.
var HookPosBeforeAction = &HookPos{Name: "BeforeAction"}

// HookPosAfterAction triggers after a single action has returned.
var HookPosAfterAction = &HookPos{Name: "AfterAction"}

// HookCtx is the context that holds all the information about the site that
// a hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// BatchInfo is the Item carried by batch-position hooks.
type BatchInfo struct {
	Time VTime
	IDs  []EventID
}

// ActionInfo is the Item carried by action-position hooks.
type ActionInfo struct {
	ID   EventID
	Time VTime
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides some utility function for other type that
// implement the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
