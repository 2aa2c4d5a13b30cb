package orchestrator

import (
	"context"
	"fmt"

	"github.com/graphling/graphling/internal/queue"
	"github.com/graphling/graphling/internal/symbolmapper"
	"github.com/graphling/graphling/pkg/graph"
)

// processReferencesFile runs Pass 2 for one file: for every symbol the
// Symbol Registry holds for its uri, request references and
// implementation and map the results to edges. File nodes themselves
// carry no useful reference query, so they're skipped.
func (j *Job) processReferencesFile(ctx context.Context, item *queue.Item) ([]graph.CodeNode, []graph.Edge, error) {
	desc, ok := j.descriptorFor(item.Path)
	if !ok {
		return nil, nil, fmt.Errorf("no descriptor for %s", item.Path)
	}

	if j.deps.Pool.Unavailable(desc.Language) {
		return nil, nil, fmt.Errorf("%s: language server unavailable", desc.Language)
	}

	uri := j.fileURI(desc.Path)
	nodes := j.reg.NodesForURI(uri)

	var edges []graph.Edge

	for _, node := range nodes {
		if node.Kind == graph.KindFile {
			continue
		}

		nodeEdges, err := j.symbolEdges(ctx, desc.Language, uri, node)
		if err != nil {
			return nil, nil, err
		}

		edges = append(edges, nodeEdges...)
	}

	return nil, edges, nil
}

func (j *Job) symbolEdges(ctx context.Context, language, uri string, node graph.CodeNode) ([]graph.Edge, error) {
	reqCtx, cancel := context.WithTimeout(ctx, j.cfg.LSPRequestTimeout)
	defer cancel()

	client, release, err := j.deps.Pool.Acquire(reqCtx, language)
	if err != nil {
		return nil, fmt.Errorf("acquire %s server: %w", language, err)
	}
	defer release()

	refs, err := client.References(reqCtx, uri, node.Range.Start)
	if err != nil {
		return nil, fmt.Errorf("references %s: %w", node.Name, err)
	}

	impls, err := client.Implementation(reqCtx, uri, node.Range.Start)
	if err != nil {
		return nil, fmt.Errorf("implementation %s: %w", node.Name, err)
	}

	edges := symbolmapper.MapReferences(j.reg, j.projectRootURI(), node.ID, node.Kind, refs)
	edges = append(edges, symbolmapper.MapImplementations(j.reg, node.ID, impls)...)

	return edges, nil
}
