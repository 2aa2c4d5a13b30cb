// Package registry implements the job-scoped Symbol Registry: an
// in-memory index of discovered symbols by node id and by uri, used
// during pass 2 to resolve reference and implementation targets that are
// internal to the project, and to dedupe nodes discovered independently
// by concurrent workers. It is discarded when its owning job ends.
package registry

import (
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/graphling/graphling/pkg/graph"
)

// uriShard holds every node known for one uri, guarded by its own
// RWMutex: writers to a uri hold exclusivity over that uri only, so
// readers and writers working on different files never contend.
type uriShard struct {
	mu    sync.RWMutex
	nodes []graph.CodeNode
}

// Registry maps node_id -> CodeNode and uri -> set<node_id>.
type Registry struct {
	shardsMu sync.Mutex
	shards   map[string]*uriShard

	idMu sync.RWMutex
	byID map[string]graph.CodeNode
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		shards: make(map[string]*uriShard),
		byID:   make(map[string]graph.CodeNode),
	}
}

func (r *Registry) shardFor(uri string) *uriShard {
	r.shardsMu.Lock()
	defer r.shardsMu.Unlock()

	sh, ok := r.shards[uri]
	if !ok {
		sh = &uriShard{}
		r.shards[uri] = sh
	}

	return sh
}

// Put registers a single node. See PutAll.
func (r *Registry) Put(node graph.CodeNode) {
	r.PutAll([]graph.CodeNode{node})
}

// PutAll registers nodes, deduping by id: a node already present under
// its id is left untouched, so two workers that independently discover
// the same symbol converge on one registry entry without coordinating
// beyond the registry itself.
func (r *Registry) PutAll(nodes []graph.CodeNode) {
	r.idMu.Lock()
	fresh := make([]graph.CodeNode, 0, len(nodes))

	for _, n := range nodes {
		if _, exists := r.byID[n.ID]; exists {
			continue
		}

		r.byID[n.ID] = n
		fresh = append(fresh, n)
	}
	r.idMu.Unlock()

	byURI := make(map[string][]graph.CodeNode)
	for _, n := range fresh {
		byURI[n.URI] = append(byURI[n.URI], n)
	}

	for uri, group := range byURI {
		sh := r.shardFor(uri)
		sh.mu.Lock()
		sh.nodes = append(sh.nodes, group...)
		sh.mu.Unlock()
	}
}

// Get looks up a node by id, regardless of which uri registered it.
func (r *Registry) Get(id string) (graph.CodeNode, bool) {
	r.idMu.RLock()
	defer r.idMu.RUnlock()

	n, ok := r.byID[id]

	return n, ok
}

// NodesForURI returns a snapshot of every node registered under uri.
func (r *Registry) NodesForURI(uri string) []graph.CodeNode {
	r.shardsMu.Lock()
	sh, ok := r.shards[uri]
	r.shardsMu.Unlock()

	if !ok {
		return nil
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make([]graph.CodeNode, len(sh.nodes))
	copy(out, sh.nodes)

	return out
}

// Len reports how many distinct nodes are registered.
func (r *Registry) Len() int {
	r.idMu.RLock()
	defer r.idMu.RUnlock()

	return len(r.byID)
}

// NodeAt resolves a file location to the innermost registered node whose
// range contains pos, implementing symbolmapper.NodeResolver so that
// MapReferences/MapImplementations can turn raw LSP Locations into graph
// node ids. Ambiguity (overlapping ranges) is broken by preferring the
// node with the smallest span.
func (r *Registry) NodeAt(uri string, pos protocol.Position) (string, graph.NodeKind, bool) {
	nodes := r.NodesForURI(uri)

	var (
		best  graph.CodeNode
		found bool
	)

	line, char := int(pos.Line), int(pos.Character)

	for _, n := range nodes {
		if !rangeContains(n.Range, line, char) {
			continue
		}

		if !found || spanSize(n.Range) < spanSize(best.Range) {
			best = n
			found = true
		}
	}

	if !found {
		return "", "", false
	}

	return best.ID, best.Kind, true
}

func rangeContains(r graph.Range, line, char int) bool {
	if !posAtOrAfter(line, char, r.Start.Line, r.Start.Character) {
		return false
	}

	return posAtOrAfter(r.End.Line, r.End.Character, line, char)
}

func posAtOrAfter(aLine, aChar, bLine, bChar int) bool {
	if aLine != bLine {
		return aLine > bLine
	}

	return aChar >= bChar
}

func spanSize(r graph.Range) int64 {
	lineSpan := int64(r.End.Line - r.Start.Line)

	return lineSpan*1_000_000 + int64(r.End.Character-r.Start.Character)
}
