package tree

import (
	"testing"

	"github.com/acts-go/acts/model"
)

func TestCompileLinear(t *testing.T) {
	w := &model.Workflow{ID: "w1", Steps: []model.Step{{ID: "s1"}, {ID: "s2"}}}
	root, err := Compile(w)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if root.Kind() != KindWorkflow {
		t.Fatalf("root kind = %v", root.Kind())
	}
	if len(root.Children) != 2 {
		t.Fatalf("want 2 step children, got %d", len(root.Children))
	}
	s1, s2 := root.Children[0], root.Children[1]
	if s1.Next != s2 || s2.Prev != s1 {
		t.Fatalf("sibling links not wired")
	}
	if s1.Level != 1 || s2.Level != 1 {
		t.Fatalf("want level 1, got %d %d", s1.Level, s2.Level)
	}
}

func TestCompileUnknownNext(t *testing.T) {
	w := &model.Workflow{ID: "w1", Steps: []model.Step{{ID: "s1", Next: "nope"}}}
	if _, err := Compile(w); err == nil {
		t.Fatal("expected error for unknown next")
	}
}

func TestCompileBranches(t *testing.T) {
	w := &model.Workflow{ID: "w1", Steps: []model.Step{
		{ID: "s1", Branches: []model.Branch{
			{ID: "b1", If: "$(a)>0", Steps: []model.Step{{ID: "s2"}}},
			{ID: "b2", Else: true, Steps: []model.Step{{ID: "s3"}}},
		}},
	}}
	root, err := Compile(w)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	s1 := root.Children[0]
	if len(s1.Children) != 2 {
		t.Fatalf("want 2 branches, got %d", len(s1.Children))
	}
	b1, b2 := s1.Children[0], s1.Children[1]
	if b1.Kind() != KindBranch || b2.Kind() != KindBranch {
		t.Fatalf("expected branch nodes")
	}
	if b1.Next != b2 {
		t.Fatalf("branch siblings not linked")
	}
	if b1.Level != 2 {
		t.Fatalf("branch level = %d, want 2", b1.Level)
	}
	if len(b1.Children) != 1 || b1.Children[0].StepNode().ID != "s2" {
		t.Fatalf("nested branch step not compiled")
	}
}

func TestFindStep(t *testing.T) {
	w := &model.Workflow{ID: "w1", Steps: []model.Step{{ID: "s1"}, {ID: "s2"}}}
	root, _ := Compile(w)
	n := FindStep(root, "s2")
	if n == nil || n.StepNode().ID != "s2" {
		t.Fatalf("FindStep(s2) failed")
	}
}
