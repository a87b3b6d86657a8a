package engine

import (
	"fmt"

	"github.com/shaiso/Orderflow/internal/domain"
)

// Node — узел графа: ID task и ID её зависимостей.
type Node struct {
	ID        string
	DependsOn []string
}

// NodesFromSteps строит узлы из шагов blueprint.
func NodesFromSteps(steps []Step) []Node {
	nodes := make([]Node, 0, len(steps))
	for _, s := range steps {
		nodes = append(nodes, Node{ID: s.TaskID, DependsOn: s.DependsOn})
	}
	return nodes
}

// NodesFromTasks строит узлы из сохранённых tasks.
func NodesFromTasks(tasks []domain.Task) []Node {
	nodes := make([]Node, 0, len(tasks))
	for _, t := range tasks {
		nodes = append(nodes, Node{ID: t.TaskID, DependsOn: t.DependsOn})
	}
	return nodes
}

// Graph — граф зависимостей tasks одного заказа.
type Graph struct {
	// Adjacency — ID → ID зависимостей.
	Adjacency map[string][]string

	// IDs — узлы в порядке blueprint.
	IDs []string

	// dependents — обратные рёбра (зависимость → зависящие), в порядке blueprint.
	dependents map[string][]string
}

// BuildGraph строит граф из узлов.
//
// Повторяющиеся рёбра схлопываются. Зависимости на неизвестные узлы
// сохраняются как есть и ловятся в Validate.
func BuildGraph(nodes []Node) *Graph {
	g := &Graph{
		Adjacency:  make(map[string][]string, len(nodes)),
		IDs:        make([]string, 0, len(nodes)),
		dependents: make(map[string][]string, len(nodes)),
	}

	for _, n := range nodes {
		if _, exists := g.Adjacency[n.ID]; !exists {
			g.IDs = append(g.IDs, n.ID)
		}

		deps := make([]string, 0, len(n.DependsOn))
		seen := make(map[string]bool, len(n.DependsOn))
		for _, dep := range n.DependsOn {
			if seen[dep] {
				continue // уже связаны
			}
			seen[dep] = true
			deps = append(deps, dep)
		}
		g.Adjacency[n.ID] = deps
	}

	for _, id := range g.IDs {
		for _, dep := range g.Adjacency[id] {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}

	return g
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.IDs)
}

// HasCycle проверяет граф на циклы обходом в глубину.
//
// Обход итеративный, с явным стеком: узел, встреченный повторно,
// пока он ещё на стеке, означает цикл. Полностью обойдённые узлы
// повторно не посещаются. O(V+E).
func (g *Graph) HasCycle() bool {
	_, found := g.findCycle()
	return found
}

// findCycle возвращает узел, на котором замкнулся цикл.
func (g *Graph) findCycle() (string, bool) {
	const (
		unvisited = iota
		onStack
		done
	)

	type frame struct {
		id   string
		next int // индекс следующей зависимости
	}

	state := make(map[string]int, len(g.IDs))

	for _, start := range g.IDs {
		if state[start] != unvisited {
			continue
		}

		stack := []frame{{id: start}}
		state[start] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.Adjacency[top.id]

			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++

				if _, known := g.Adjacency[dep]; !known {
					continue
				}

				switch state[dep] {
				case onStack:
					return dep, true
				case unvisited:
					state[dep] = onStack
					stack = append(stack, frame{id: dep})
				}
				continue
			}

			state[top.id] = done
			stack = stack[:len(stack)-1]
		}
	}

	return "", false
}

// Validate проверяет, что все зависимости известны и граф ацикличен.
func (g *Graph) Validate() error {
	if err := g.checkDependencies(); err != nil {
		return err
	}
	if id, found := g.findCycle(); found {
		return NewValidationError(id, "depends_on", "circular dependency", ErrCyclicDependency)
	}
	return nil
}

// checkDependencies проверяет, что каждая зависимость — узел графа.
func (g *Graph) checkDependencies() error {
	for _, id := range g.IDs {
		for _, dep := range g.Adjacency[id] {
			if _, ok := g.Adjacency[dep]; !ok {
				return NewValidationError(id, "depends_on",
					fmt.Sprintf("depends on unknown task: %s", dep), ErrMissingDependency)
			}
		}
	}
	return nil
}

// TopologicalOrder выполняет топологическую сортировку (алгоритм Кана).
//
// Очередь FIFO заполняется в порядке blueprint, поэтому одновременно
// готовые узлы выходят в порядке blueprint.
// Возвращает ErrCyclicDependency, если обработаны не все узлы.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if err := g.checkDependencies(); err != nil {
		return nil, err
	}

	// inDegree — число неразрешённых зависимостей
	inDegree := make(map[string]int, len(g.IDs))
	queue := make([]string, 0, len(g.IDs))
	for _, id := range g.IDs {
		inDegree[id] = len(g.Adjacency[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.IDs))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dependent := range g.dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g.IDs) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// TopologicalOrder строит граф из узлов и сортирует его.
func TopologicalOrder(nodes []Node) ([]string, error) {
	return BuildGraph(nodes).TopologicalOrder()
}

// ReadyNodes возвращает узлы, все зависимости которых в completed.
//
// Узлы из completed и skip не возвращаются. Порядок — порядок blueprint.
func (g *Graph) ReadyNodes(completed, skip map[string]bool) []string {
	ready := make([]string, 0)

	for _, id := range g.IDs {
		if completed[id] || skip[id] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range g.Adjacency[id] {
			if !completed[dep] {
				allDepsCompleted = false
				break
			}
		}

		if allDepsCompleted {
			ready = append(ready, id)
		}
	}

	return ready
}

// IsComplete проверяет, все ли узлы завершены.
func (g *Graph) IsComplete(completed map[string]bool) bool {
	for _, id := range g.IDs {
		if !completed[id] {
			return false
		}
	}
	return true
}
