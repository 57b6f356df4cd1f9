package emit

import "testing"

func TestBusDispatchOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.On(KindMessage, func(Message) { order = append(order, "first") })
	bus.On(KindMessage, func(Message) { order = append(order, "second") })

	bus.Emit(Message{Type: TypeStep, State: StateCreated, Pid: "p1", Tid: "t1"})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestBusStartComplete(t *testing.T) {
	bus := NewBus()
	var started, completed bool
	bus.On(KindStart, func(Message) { started = true })
	bus.On(KindComplete, func(Message) { completed = true })

	bus.Emit(Message{Type: TypeWorkflow, State: StateCreated, Pid: "p1"})
	bus.Emit(Message{Type: TypeWorkflow, State: StateCompleted, Pid: "p1"})

	if !started || !completed {
		t.Fatalf("started=%v completed=%v", started, completed)
	}
}

func TestBufferedEmitterHistory(t *testing.T) {
	be := NewBufferedEmitter()
	be.Emit(Message{Pid: "p1", Tid: "t1", Type: TypeStep, State: StateCreated})
	be.Emit(Message{Pid: "p1", Tid: "t2", Type: TypeStep, State: StateCompleted})
	be.Emit(Message{Pid: "p2", Tid: "t3", Type: TypeStep, State: StateCreated})

	hist := be.History("p1")
	if len(hist) != 2 {
		t.Fatalf("History(p1) len = %d, want 2", len(hist))
	}

	errOnly := be.HistoryWithFilter("p1", HistoryFilter{State: StateCompleted})
	if len(errOnly) != 1 || errOnly[0].Tid != "t2" {
		t.Fatalf("filtered = %v", errOnly)
	}
}

func TestNullEmitterNoOp(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(Message{})
	n.EmitBatch([]Message{{}, {}})
	if err := n.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
