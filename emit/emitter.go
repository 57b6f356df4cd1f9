package emit

// Emitter fans out Messages to subscribers. Dispatch is synchronous to all
// subscribers in registration order from the scheduler's loop thread;
// subscribers must not block.
type Emitter interface {
	Emit(msg Message)
	EmitBatch(msgs []Message)
	Flush() error
}

// Typed subscription kinds matching the event bus contract: on_message,
// on_start, on_complete, on_error, on_tick, plus internal on_proc/on_task.
type Kind string

const (
	KindMessage  Kind = "message"
	KindStart    Kind = "start"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
	KindTick     Kind = "tick"
	KindProc     Kind = "proc"
	KindTask     Kind = "task"
)

// Bus is an Emitter that additionally supports typed subscriptions
// (on_message/on_start/on_complete/on_error/on_tick), generalizing the
// teacher's single-callback Emitter into the multi-subscription event bus
// the component design calls for.
type Bus struct {
	subs map[Kind][]func(Message)
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]func(Message))}
}

// On registers callback for kind. Subscribers are invoked in registration
// order and must not block.
func (b *Bus) On(kind Kind, callback func(Message)) {
	b.subs[kind] = append(b.subs[kind], callback)
}

// Emit dispatches msg to KindMessage subscribers plus the kind implied by
// msg.Type and msg.State: tick for TypeTick, start on Created for workflow
// tasks, complete on Completed for workflow tasks, error on Error for any
// task. Other terminal states (e.g. a workflow Aborted) reach only the
// KindMessage subscribers.
func (b *Bus) Emit(msg Message) {
	for _, cb := range b.subs[KindMessage] {
		cb(msg)
	}
	switch {
	case msg.Type == TypeTick:
		for _, cb := range b.subs[KindTick] {
			cb(msg)
		}
	case msg.Type == TypeWorkflow && msg.State == StateCreated:
		for _, cb := range b.subs[KindStart] {
			cb(msg)
		}
	case msg.Type == TypeWorkflow && msg.State == StateCompleted:
		for _, cb := range b.subs[KindComplete] {
			cb(msg)
		}
	case msg.State == StateError:
		for _, cb := range b.subs[KindError] {
			cb(msg)
		}
	}
}

// EmitBatch emits each message in order.
func (b *Bus) EmitBatch(msgs []Message) {
	for _, m := range msgs {
		b.Emit(m)
	}
}

// Flush is a no-op for Bus; present to satisfy Emitter.
func (b *Bus) Flush() error { return nil }
