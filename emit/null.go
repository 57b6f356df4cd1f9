package emit

// NullEmitter discards every Message, ported from graph/emit/null.go. Safe
// for concurrent use, zero overhead.
type NullEmitter struct{}

// NewNullEmitter returns a NullEmitter.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(Message)          {}
func (n *NullEmitter) EmitBatch([]Message)   {}
func (n *NullEmitter) Flush() error          { return nil }
