package engine

import (
	"errors"
	"reflect"
	"testing"
)

func buildDAG(t *testing.T, nodes []string, edges [][2]string) (*DAG, error) {
	t.Helper()
	d := NewDAG("task")
	for _, n := range nodes {
		d.AddNode(n)
	}
	for _, e := range edges {
		if err := d.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge(%s, %s): %v", e[0], e[1], err)
		}
	}
	return d, d.Build()
}

func TestDAG_SimpleChain(t *testing.T) {
	// C зависит от B, B зависит от A
	dag, err := buildDAG(t, []string{"A", "B", "C"}, [][2]string{{"B", "A"}, {"C", "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", dag.Size())
	}
	if len(dag.RootNodes) != 1 || dag.RootNodes[0].ID != "A" {
		t.Errorf("expected single root A, got %v", dag.RootNodes)
	}

	var order []string
	for _, n := range dag.Order {
		order = append(order, n.ID)
	}
	if !reflect.DeepEqual(order, []string{"A", "B", "C"}) {
		t.Errorf("unexpected order %v", order)
	}
}

func TestDAG_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	dag, err := buildDAG(t, []string{"D", "C", "B", "A"},
		[][2]string{{"B", "A"}, {"C", "A"}, {"D", "B"}, {"D", "C"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.GetNode("D").InDegree != 2 {
		t.Errorf("D should have inDegree 2, got %d", dag.GetNode("D").InDegree)
	}

	levels := dag.Levels()
	want := [][]string{{"A"}, {"B", "C"}, {"D"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}

	if got := dag.Ancestors("D"); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("Ancestors(D) = %v", got)
	}
	if got := dag.Descendants("B"); !reflect.DeepEqual(got, []string{"D"}) {
		t.Errorf("Descendants(B) = %v", got)
	}
}

func TestDAG_DuplicateEdgesCollapse(t *testing.T) {
	dag, err := buildDAG(t, []string{"A", "B"}, [][2]string{{"B", "A"}, {"B", "A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.GetNode("B").InDegree != 1 {
		t.Errorf("duplicate edge counted twice: inDegree %d", dag.GetNode("B").InDegree)
	}
}

func TestDAG_UnknownNode(t *testing.T) {
	d := NewDAG("task")
	d.AddNode("A")
	if err := d.AddEdge("A", "Z"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode, got %v", err)
	}
}

func TestDAG_ThreeCycle(t *testing.T) {
	// A → B → C → A
	_, err := buildDAG(t, []string{"A", "B", "C", "D"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}, {"D", "A"}})
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if !reflect.DeepEqual(cycleErr.Path, []string{"A", "B", "C", "A"}) {
		t.Errorf("cycle path = %v", cycleErr.Path)
	}
	if cycleErr.Error() != "dependency cycle among tasks: A -> B -> C -> A" {
		t.Errorf("unexpected message: %s", cycleErr.Error())
	}
}

func TestDAG_SelfLoop(t *testing.T) {
	_, err := buildDAG(t, []string{"A"}, [][2]string{{"A", "A"}})

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if !reflect.DeepEqual(cycleErr.Path, []string{"A", "A"}) {
		t.Errorf("cycle path = %v", cycleErr.Path)
	}
}

func TestDAG_WorkflowScope(t *testing.T) {
	d := NewDAG("workflow")
	d.AddNode("English")
	d.AddNode("Italian")
	_ = d.AddEdge("English", "Italian")
	_ = d.AddEdge("Italian", "English")

	err := d.Build()
	if err == nil || err.Error() != "dependency cycle among workflows: English -> Italian -> English" {
		t.Errorf("unexpected error: %v", err)
	}
}
