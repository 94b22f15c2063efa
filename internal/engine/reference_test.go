package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shaiso/Dagon/internal/domain"
)

func TestParseReferences(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []Reference
	}{
		{
			name:    "no references",
			command: "echo 10 > A.txt",
			want:    nil,
		},
		{
			name:    "triple slash",
			command: "cat workflow:///Pirandello/output-random-file.txt",
			want: []Reference{
				{Task: "Pirandello", Path: "output-random-file.txt"},
			},
		},
		{
			name:    "named workflow and redirect",
			command: "cat workflow://Italian/Hemingway/A.txt > B.txt",
			want: []Reference{
				{Workflow: "Italian", Task: "Hemingway", Path: "A.txt"},
			},
		},
		{
			name:    "nested path",
			command: "python3 pow2.py workflow:///Svevo/Italian-Writers/Pirandello/out.txt",
			want: []Reference{
				{Task: "Svevo", Path: "Italian-Writers/Pirandello/out.txt"},
			},
		},
		{
			name:    "many references interleaved with shell syntax",
			command: "paste workflow:///A/f1;cat $(echo workflow://W/B/dir/f2)|wc -l && cp 'workflow:///C/x' .",
			want: []Reference{
				{Task: "A", Path: "f1"},
				{Workflow: "W", Task: "B", Path: "dir/f2"},
				{Task: "C", Path: "x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReferences(tt.command)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d references, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, ref := range got {
				w := tt.want[i]
				if ref.Workflow != w.Workflow || ref.Task != w.Task || ref.Path != w.Path {
					t.Errorf("ref %d = %+v, want %+v", i, ref, w)
				}
				if tt.command[ref.Start:ref.End] != ref.Raw {
					t.Errorf("ref %d offsets do not match raw %q", i, ref.Raw)
				}
			}
		})
	}
}

func TestParseReferences_Malformed(t *testing.T) {
	for _, cmd := range []string{
		"cat workflow://W/B",
		"cat workflow:////path",
		"cat workflow:///A/",
		"cat workflow://",
	} {
		_, err := ParseReferences(cmd)
		if !errors.Is(err, ErrMalformedReference) {
			t.Errorf("%q: expected ErrMalformedReference, got %v", cmd, err)
		}
		if errors.Is(err, ErrUnresolvedReference) {
			t.Errorf("%q: malformed reference must not be reported as unresolved", cmd)
		}
	}
}

func TestRewrite(t *testing.T) {
	cmd := "paste workflow:///A/f1 workflow://W/B/f2 > out"
	refs, err := ParseReferences(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Rewrite(cmd, refs, func(r Reference) string {
		return "/in/" + r.Task + "/" + r.Path
	})
	if got != "paste /in/A/f1 /in/B/f2 > out" {
		t.Errorf("Rewrite = %q", got)
	}
}

// mapScope — Scope поверх map для тестов.
type mapScope map[string]map[string]*domain.Task

func (s mapScope) LookupTask(workflow, task string) (*domain.Task, error) {
	tasks, ok := s[workflow]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}
	t, ok := tasks[task]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownTask, workflow, task)
	}
	return t, nil
}

func newAttached(t *testing.T, wf, name, cmd string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.TaskTypeBatch, name, cmd)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := task.Attach(wf); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return task
}

func TestResolveReferences_TripleSlashEquivalence(t *testing.T) {
	producer := newAttached(t, "W", "Task", "echo 1 > path")
	local := newAttached(t, "W", "L", "cat workflow:///Task/path")
	remote := newAttached(t, "X", "R", "cat workflow://W/Task/path")

	scope := mapScope{
		"W": {"Task": producer, "L": local},
		"X": {"R": remote},
	}

	a, err := ResolveReferences(scope, local)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ResolveReferences(scope, remote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a[0].Producer != b[0].Producer {
		t.Error("triple-slash and named reference resolve to different tasks")
	}
	if a[0].String() != b[0].String() {
		t.Errorf("qualified references differ: %s vs %s", a[0].String(), b[0].String())
	}
}

func TestResolveReferences_Unresolved(t *testing.T) {
	task := newAttached(t, "W", "A", "cat workflow:///Missing/f")
	scope := mapScope{"W": {"A": task}}

	_, err := ResolveReferences(scope, task)
	if !errors.Is(err, ErrUnresolvedReference) || !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected unresolved unknown task, got %v", err)
	}

	other := newAttached(t, "W", "B", "cat workflow://Nowhere/A/f")
	scope["W"]["B"] = other
	_, err = ResolveReferences(scope, other)
	if !errors.Is(err, ErrUnresolvedReference) || !errors.Is(err, ErrUnknownWorkflow) {
		t.Fatalf("expected unresolved unknown workflow, got %v", err)
	}

	var refErr *ReferenceError
	if !errors.As(err, &refErr) || refErr.Task != "B" || refErr.Workflow != "W" {
		t.Errorf("reference error lacks context: %+v", refErr)
	}
}
