package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/graphling/graphling/internal/queue"
	"github.com/graphling/graphling/internal/symbolmapper"
	"github.com/graphling/graphling/pkg/graph"
)

// processStructureFile runs Pass 1 for one file: open it with its
// language's server, request documentSymbol, map the result to nodes and
// a CONTAINS chain rooted at the Project node, and register the nodes so
// Pass 2 can resolve reference targets against them.
func (j *Job) processStructureFile(ctx context.Context, item *queue.Item) ([]graph.CodeNode, []graph.Edge, error) {
	desc, ok := j.descriptorFor(item.Path)
	if !ok {
		return nil, nil, fmt.Errorf("no descriptor for %s", item.Path)
	}

	if j.deps.Pool.Unavailable(desc.Language) {
		return nil, nil, fmt.Errorf("%s: language server unavailable", desc.Language)
	}

	reqCtx, cancel := context.WithTimeout(ctx, j.cfg.LSPRequestTimeout)
	defer cancel()

	client, release, err := j.deps.Pool.Acquire(reqCtx, desc.Language)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire %s server: %w", desc.Language, err)
	}
	defer release()

	content, err := os.ReadFile(filepath.Join(j.RootPath, filepath.FromSlash(desc.Path))) //nolint:gosec // path comes from the walked project root.
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", desc.Path, err)
	}

	uri := j.fileURI(desc.Path)

	if err := client.DidOpen(reqCtx, uri, desc.Language, string(content)); err != nil {
		return nil, nil, fmt.Errorf("didOpen %s: %w", desc.Path, err)
	}

	symbols, err := client.DocumentSymbol(reqCtx, uri)
	if err != nil {
		return nil, nil, fmt.Errorf("documentSymbol %s: %w", desc.Path, err)
	}

	result := symbolmapper.MapDocumentSymbols(j.ProjectID, uri, desc.Path, desc.Language, symbols)

	j.reg.PutAll(result.Nodes)

	j.mu.Lock()
	j.fileNodeIDs[desc.Path] = result.FileNodeID
	j.mu.Unlock()

	rootID := j.projectRootID()
	rootEdge := graph.Edge{
		ID:     symbolmapper.EdgeID(rootID, result.FileNodeID, graph.EdgeContains),
		Source: rootID,
		Target: result.FileNodeID,
		Type:   graph.EdgeContains,
	}

	edges := make([]graph.Edge, 0, len(result.Edges)+1)
	edges = append(edges, rootEdge)
	edges = append(edges, result.Edges...)

	return result.Nodes, edges, nil
}
