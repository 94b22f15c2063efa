package engine

import (
	"fmt"
	"sort"
)

// Node — узел в DAG.
type Node struct {
	// ID — имя задачи или workflow.
	ID string

	// InDegree — количество зависимостей узла.
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел (producer'ы).
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла (consumer'ы).
	Dependents []*Node
}

// DAG — направленный ациклический граф зависимостей.
//
// Ребро consumer → producer означает, что consumer ждёт завершения producer.
// Граф используется на двух уровнях: задачи внутри workflow
// и workflow внутри мета-workflow (Scope различает их в ошибках).
type DAG struct {
	// Scope — "task" или "workflow".
	Scope string

	// Nodes — все узлы графа (ID → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей (точки входа).
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	// Заполняется Build.
	Order []*Node
}

// NewDAG создаёт пустой граф.
func NewDAG(scope string) *DAG {
	return &DAG{
		Scope: scope,
		Nodes: make(map[string]*Node),
	}
}

// AddNode добавляет узел. Повторное добавление возвращает существующий узел.
func (d *DAG) AddNode(id string) *Node {
	if node, ok := d.Nodes[id]; ok {
		return node
	}
	node := &Node{
		ID:         id,
		DependsOn:  make([]*Node, 0),
		Dependents: make([]*Node, 0),
	}
	d.Nodes[id] = node
	return node
}

// AddEdge добавляет ребро consumer → producer.
// Дубликаты схлопываются, чтобы не считать InDegree дважды.
func (d *DAG) AddEdge(consumer, producer string) error {
	to, ok := d.Nodes[consumer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, consumer)
	}
	from, ok := d.Nodes[producer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, producer)
	}
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return nil // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
	return nil
}

// Build находит корневые узлы и строит топологический порядок.
// При наличии цикла возвращает *CycleError с одним замкнутым путём.
func (d *DAG) Build() error {
	d.findRootNodes()

	order, err := d.topologicalSort()
	if err != nil {
		return err
	}
	d.Order = order
	return nil
}

// findRootNodes находит узлы без входящих рёбер.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for _, id := range d.sortedIDs() {
		if node := d.Nodes[id]; node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Среди одновременно готовых узлов первым идёт узел с меньшим ID.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		released := false
		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
				released = true
			}
		}
		if released {
			sortNodes(queue)
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Nodes) {
		return nil, &CycleError{Scope: d.Scope, Path: d.findCycle()}
	}

	return order, nil
}

// findCycle ищет один цикл обходом в глубину с раскраской
// (white/gray/black) по рёбрам consumer → producer.
func (d *DAG) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(d.Nodes))
	parent := make(map[string]string, len(d.Nodes))
	var cycle []string

	var dfs func(u *Node) bool
	dfs = func(u *Node) bool {
		color[u.ID] = gray
		deps := append([]*Node(nil), u.DependsOn...)
		sortNodes(deps)
		for _, v := range deps {
			switch color[v.ID] {
			case white:
				parent[v.ID] = u.ID
				if dfs(v) {
					return true
				}
			case gray:
				// Обратное ребро u → v: v → ... → u → v.
				path := []string{u.ID}
				for cur := u.ID; cur != v.ID; {
					cur = parent[cur]
					path = append(path, cur)
				}
				for i := len(path) - 1; i >= 0; i-- {
					cycle = append(cycle, path[i])
				}
				cycle = append(cycle, v.ID)
				return true
			}
		}
		color[u.ID] = black
		return false
	}

	for _, id := range d.sortedIDs() {
		if color[id] == white && dfs(d.Nodes[id]) {
			break
		}
	}
	return cycle
}

// Levels группирует топологический порядок по уровням:
// уровень узла на единицу больше максимального уровня его зависимостей.
// Вызывать после Build.
func (d *DAG) Levels() [][]string {
	level := make(map[string]int, len(d.Order))
	var levels [][]string
	for _, node := range d.Order {
		l := 0
		for _, dep := range node.DependsOn {
			if level[dep.ID]+1 > l {
				l = level[dep.ID] + 1
			}
		}
		level[node.ID] = l
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], node.ID)
	}
	for _, ids := range levels {
		sort.Strings(ids)
	}
	return levels
}

// Ancestors возвращает все прямые и транзитивные зависимости узла.
func (d *DAG) Ancestors(id string) []string {
	return d.walk(id, func(n *Node) []*Node { return n.DependsOn })
}

// Descendants возвращает все прямые и транзитивные зависимые узлы.
func (d *DAG) Descendants(id string) []string {
	return d.walk(id, func(n *Node) []*Node { return n.Dependents })
}

// walk обходит граф в ширину от id (не включая его) по рёбрам next.
func (d *DAG) walk(id string, next func(*Node) []*Node) []string {
	start, ok := d.Nodes[id]
	if !ok {
		return nil
	}
	seen := map[string]bool{id: true}
	queue := []*Node{start}
	out := make([]string, 0)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range next(n) {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m.ID)
			queue = append(queue, m)
		}
	}
	sort.Strings(out)
	return out
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

func (d *DAG) sortedIDs() []string {
	ids := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
