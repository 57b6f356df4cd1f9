package model

import "testing"

func TestValidateEmptyWorkflow(t *testing.T) {
	w := &Workflow{ID: "w1"}
	err := w.Validate()
	var merr *ModelError
	if err == nil {
		t.Fatal("expected error for empty workflow")
	}
	if e, ok := err.(*ModelError); !ok || e.Code != ErrEmptyWorkflow {
		t.Fatalf("got %v (%T), want ErrEmptyWorkflow", err, err)
	}
	_ = merr
}

func TestValidateDuplicateStepID(t *testing.T) {
	w := &Workflow{ID: "w1", Steps: []Step{{ID: "s1"}, {ID: "s1"}}}
	err := w.Validate()
	e, ok := err.(*ModelError)
	if !ok || e.Code != ErrDuplicateStepID {
		t.Fatalf("got %v, want ErrDuplicateStepID", err)
	}
}

func TestValidateUnknownNext(t *testing.T) {
	w := &Workflow{ID: "w1", Steps: []Step{{ID: "s1", Next: "missing"}}}
	err := w.Validate()
	e, ok := err.(*ModelError)
	if !ok || e.Code != ErrUnknownNext {
		t.Fatalf("got %v, want ErrUnknownNext", err)
	}
}

func TestValidateMissingActKey(t *testing.T) {
	w := &Workflow{ID: "w1", Steps: []Step{{ID: "s1", Acts: []Act{{ID: "a1", Kind: ActIRQ}}}}}
	err := w.Validate()
	e, ok := err.(*ModelError)
	if !ok || e.Code != ErrMissingActKey {
		t.Fatalf("got %v, want ErrMissingActKey", err)
	}
}

func TestValidateLinearOK(t *testing.T) {
	w := &Workflow{ID: "w1", Steps: []Step{{ID: "s1"}, {ID: "s2"}}}
	if err := w.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStepByIDFindsNested(t *testing.T) {
	w := &Workflow{ID: "w1", Steps: []Step{
		{ID: "s1", Branches: []Branch{{ID: "b1", Steps: []Step{{ID: "s2"}}}}},
	}}
	if _, ok := StepByID(w.Steps, "s2"); !ok {
		t.Fatal("expected to find nested step s2")
	}
}
