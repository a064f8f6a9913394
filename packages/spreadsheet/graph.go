package spreadsheet

import (
	"sort"
)

// Vertex is a graph node identified by a string key. UpdateKey recomputes the
// key after the vertex's identity (for instance its cell position) changed.
type Vertex interface {
	Key() string
	UpdateKey()
}

// DependencyGraph is a directed graph where an edge v -> w means "w depends
// on v". adjacency (dependents) and precedents are kept symmetric by every
// mutating method.
type DependencyGraph[T Vertex] struct {
	adj     map[string]map[string]T // v -> vertices depending on v
	prec    map[string]map[string]T // w -> vertices w depends on
	symbols map[string]T
	retain  func(T) bool
}

// NewDependencyGraph creates an empty graph. retain, when non-nil, protects
// vertices from pruning even when they have no edges left.
func NewDependencyGraph[T Vertex](retain func(T) bool) *DependencyGraph[T] {
	return &DependencyGraph[T]{
		adj:     make(map[string]map[string]T),
		prec:    make(map[string]map[string]T),
		symbols: make(map[string]T),
		retain:  retain,
	}
}

// AddVertex adds v if no vertex with its key is present
func (g *DependencyGraph[T]) AddVertex(v T) {
	key := v.Key()
	if _, exists := g.symbols[key]; exists {
		return
	}
	g.symbols[key] = v
	g.adj[key] = make(map[string]T)
	g.prec[key] = make(map[string]T)
}

func (g *DependencyGraph[T]) HasVertex(key string) bool {
	_, exists := g.symbols[key]
	return exists
}

// Vertex returns the vertex stored under key
func (g *DependencyGraph[T]) Vertex(key string) (T, bool) {
	v, exists := g.symbols[key]
	return v, exists
}

// RemoveVertex removes v and all its incident edges. with prune, any
// neighbour left without edges is removed as well.
func (g *DependencyGraph[T]) RemoveVertex(v T, prune bool) {
	key := v.Key()
	if _, exists := g.symbols[key]; !exists {
		return
	}

	dependents := g.adj[key]
	precedents := g.prec[key]
	delete(g.adj, key)
	delete(g.prec, key)
	delete(g.symbols, key)

	for wKey, w := range dependents {
		if wKey == key {
			continue
		}
		delete(g.prec[wKey], key)
		if prune {
			g.pruneIfIsolated(w)
		}
	}
	for uKey, u := range precedents {
		if uKey == key {
			continue
		}
		delete(g.adj[uKey], key)
		if prune {
			g.pruneIfIsolated(u)
		}
	}
}

func (g *DependencyGraph[T]) pruneIfIsolated(v T) {
	key := v.Key()
	if _, exists := g.symbols[key]; !exists {
		return
	}
	if len(g.adj[key]) > 0 || len(g.prec[key]) > 0 {
		return
	}
	if g.retain != nil && g.retain(v) {
		return
	}
	delete(g.adj, key)
	delete(g.prec, key)
	delete(g.symbols, key)
}

// AddEdge records that w depends on v, creating either vertex when missing.
// adding an existing edge is a no-op.
func (g *DependencyGraph[T]) AddEdge(v, w T) {
	g.AddVertex(v)
	g.AddVertex(w)
	vKey, wKey := v.Key(), w.Key()
	g.adj[vKey][wKey] = g.symbols[wKey]
	g.prec[wKey][vKey] = g.symbols[vKey]
}

// HasEdge reports whether w depends on v
func (g *DependencyGraph[T]) HasEdge(v, w T) bool {
	_, exists := g.adj[v.Key()][w.Key()]
	return exists
}

// RemoveEdge removes the edge v -> w. pruneV and pruneW remove the
// respective endpoint when it has no edges left.
func (g *DependencyGraph[T]) RemoveEdge(v, w T, pruneV, pruneW bool) {
	vKey, wKey := v.Key(), w.Key()
	if deps, exists := g.adj[vKey]; exists {
		delete(deps, wKey)
	}
	if precs, exists := g.prec[wKey]; exists {
		delete(precs, vKey)
	}
	if pruneV {
		g.pruneIfIsolated(v)
	}
	if pruneW {
		g.pruneIfIsolated(w)
	}
}

func sortedValues[T Vertex](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]T, len(keys))
	for i, key := range keys {
		out[i] = m[key]
	}
	return out
}

// Adj returns the vertices depending directly on v, ordered by key
func (g *DependencyGraph[T]) Adj(v T) []T {
	return sortedValues(g.adj[v.Key()])
}

// Prec returns the vertices v depends on directly, ordered by key
func (g *DependencyGraph[T]) Prec(v T) []T {
	return sortedValues(g.prec[v.Key()])
}

// V returns every vertex ordered by key
func (g *DependencyGraph[T]) V() []T {
	return sortedValues(g.symbols)
}

// E returns the number of edges
func (g *DependencyGraph[T]) E() int {
	n := 0
	for _, deps := range g.adj {
		n += len(deps)
	}
	return n
}

func (g *DependencyGraph[T]) sortedKeys() []string {
	keys := make([]string, 0, len(g.symbols))
	for key := range g.symbols {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (g *DependencyGraph[T]) adjKeys(key string) []string {
	keys := make([]string, 0, len(g.adj[key]))
	for k := range g.adj[key] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dependents returns every vertex reachable from v through dependent
// edges, excluding v unless it lies on a cycle
func (g *DependencyGraph[T]) Dependents(v T) []T {
	seen := make(map[string]T)
	queue := []string{v.Key()}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		for wKey, w := range g.adj[key] {
			if _, visited := seen[wKey]; visited {
				continue
			}
			seen[wKey] = w
			queue = append(queue, wKey)
		}
	}
	return sortedValues(seen)
}

// TopologicalSort orders vertices so that for every edge v -> w, v comes
// before w. the order is undefined for vertices on a cycle; use
// GetCalculationOrder when cycles are possible.
func (g *DependencyGraph[T]) TopologicalSort() []T {
	visited := make(map[string]bool, len(g.symbols))
	postorder := make([]string, 0, len(g.symbols))

	type frame struct {
		key  string
		next []string
		i    int
	}

	for _, root := range g.sortedKeys() {
		if visited[root] {
			continue
		}
		visited[root] = true
		work := []frame{{key: root, next: g.adjKeys(root)}}
		for len(work) > 0 {
			f := &work[len(work)-1]
			if f.i < len(f.next) {
				w := f.next[f.i]
				f.i++
				if !visited[w] {
					visited[w] = true
					work = append(work, frame{key: w, next: g.adjKeys(w)})
				}
				continue
			}
			postorder = append(postorder, f.key)
			work = work[:len(work)-1]
		}
	}

	order := make([]T, len(postorder))
	for i, key := range postorder {
		order[len(postorder)-1-i] = g.symbols[key]
	}
	return order
}

// StronglyConnectedComponents runs Tarjan's algorithm with an explicit work
// stack. components come out in reverse topological order: a component is
// emitted only after every component depending on it.
func (g *DependencyGraph[T]) StronglyConnectedComponents() [][]T {
	index := make(map[string]int, len(g.symbols))
	low := make(map[string]int, len(g.symbols))
	onStack := make(map[string]bool)
	stack := []string{}
	counter := 0
	var components [][]T

	type frame struct {
		key  string
		next []string
		i    int
	}

	visit := func(key string) frame {
		index[key] = counter
		low[key] = counter
		counter++
		stack = append(stack, key)
		onStack[key] = true
		return frame{key: key, next: g.adjKeys(key)}
	}

	for _, root := range g.sortedKeys() {
		if _, seen := index[root]; seen {
			continue
		}
		work := []frame{visit(root)}
		for len(work) > 0 {
			f := &work[len(work)-1]
			if f.i < len(f.next) {
				w := f.next[f.i]
				f.i++
				if _, seen := index[w]; !seen {
					work = append(work, visit(w))
				} else if onStack[w] {
					low[f.key] = min(low[f.key], index[w])
				}
				continue
			}

			key := f.key
			if low[key] == index[key] {
				var component []T
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					component = append(component, g.symbols[top])
					if top == key {
						break
					}
				}
				components = append(components, component)
			}
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := &work[len(work)-1]
				low[parent.key] = min(low[parent.key], low[key])
			}
		}
	}
	return components
}

// GetCalculationOrder returns the vertices in evaluation order together with
// the vertices that sit on a cycle (members of a component larger than one,
// or with an edge to themselves). cyclic vertices are left out of order.
func (g *DependencyGraph[T]) GetCalculationOrder() (order []T, cycles []T) {
	components := g.StronglyConnectedComponents()
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		if len(component) > 1 {
			cycles = append(cycles, component...)
			continue
		}
		v := component[0]
		if _, self := g.adj[v.Key()][v.Key()]; self {
			cycles = append(cycles, v)
			continue
		}
		order = append(order, v)
	}
	return order, cycles
}

// RefreshKey re-files v under its recomputed key, keeping all its edges
func (g *DependencyGraph[T]) RefreshKey(v T) {
	oldKey := v.Key()
	if _, exists := g.symbols[oldKey]; !exists {
		v.UpdateKey()
		return
	}

	dependents := g.adj[oldKey]
	precedents := g.prec[oldKey]
	_, selfLoop := dependents[oldKey]

	g.RemoveVertex(v, false)
	v.UpdateKey()
	g.AddVertex(v)

	for wKey, w := range dependents {
		if wKey != oldKey {
			g.AddEdge(v, w)
		}
	}
	for uKey, u := range precedents {
		if uKey != oldKey {
			g.AddEdge(u, v)
		}
	}
	if selfLoop {
		g.AddEdge(v, v)
	}
}
