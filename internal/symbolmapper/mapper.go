// Package symbolmapper is the deterministic transform from LSP result sets
// (documentSymbol, references, implementation) to graph CodeNodes and
// Edges. It is a pure function of its inputs: given the same project id,
// uri, and LSP results, two workers compute identical node and edge ids
// without coordinating.
package symbolmapper

import (
	"path"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/graphling/graphling/pkg/graph"
)

// NodeResolver resolves a file location to the id and kind of the
// smallest CodeNode already known to contain it — how a raw reference or
// implementation Location is turned into a graph node id. The Symbol
// Registry is the production implementation.
type NodeResolver interface {
	NodeAt(uri string, pos protocol.Position) (id string, kind graph.NodeKind, ok bool)
}

// Result bundles the nodes and edges produced by mapping one document's
// symbol tree. FileNodeID is the id of the synthesized File node, which
// the caller wires into a CONTAINS edge from the Project root.
type Result struct {
	FileNodeID string
	Nodes      []graph.CodeNode
	Edges      []graph.Edge
}

// MapDocumentSymbols converts a documentSymbol response into a File node,
// one CodeNode per symbol (recursively, including nested symbols), and a
// CONTAINS edge for every parent-child relationship including the file
// itself.
func MapDocumentSymbols(
	projectID, uri, relPath, language string,
	symbols []protocol.DocumentSymbol,
) Result {
	module := moduleName(relPath, language)

	fileNode := graph.CodeNode{
		Kind:      graph.KindFile,
		Name:      path.Base(relPath),
		ProjectID: projectID,
		URI:       uri,
		Language:  language,
	}
	fileNode.ID = nodeID(projectID, graph.KindFile, module, uri)

	res := Result{FileNodeID: fileNode.ID, Nodes: []graph.CodeNode{fileNode}}

	ctx := mapContext{projectID: projectID, uri: uri, language: language}
	for _, sym := range symbols {
		walkSymbol(ctx, module, fileNode.ID, sym, &res)
	}

	return res
}

type mapContext struct {
	projectID string
	uri       string
	language  string
}

func walkSymbol(ctx mapContext, parentFQN, parentNodeID string, sym protocol.DocumentSymbol, res *Result) {
	fqn := parentFQN + "." + sym.Name
	kind := mapSymbolKind(sym.Kind)

	detail := ""
	if sym.Detail != nil {
		detail = *sym.Detail
	}

	node := graph.CodeNode{
		Kind:      kind,
		Name:      sym.Name,
		Detail:    detail,
		Range:     toRange(sym.Range),
		ProjectID: ctx.projectID,
		URI:       ctx.uri,
		Language:  ctx.language,
	}
	node.ID = nodeID(ctx.projectID, kind, fqn, ctx.uri)

	res.Nodes = append(res.Nodes, node)
	res.Edges = append(res.Edges, containsEdge(parentNodeID, node.ID))

	for _, child := range sym.Children {
		walkSymbol(ctx, fqn, node.ID, child, res)
	}
}

func containsEdge(parentID, childID string) graph.Edge {
	return graph.Edge{
		ID:     edgeID(parentID, childID, graph.EdgeContains),
		Source: parentID,
		Target: childID,
		Type:   graph.EdgeContains,
	}
}

// moduleName derives the module a file belongs to, following
// language-specific rules: Python uses the dotted package path; every
// other language uses the file's basename.
func moduleName(relPath, language string) string {
	if language == "Python" {
		trimmed := strings.TrimSuffix(relPath, path.Ext(relPath))

		return strings.ReplaceAll(trimmed, "/", ".")
	}

	base := path.Base(relPath)

	return strings.TrimSuffix(base, path.Ext(base))
}

func toRange(r protocol.Range) graph.Range {
	return graph.Range{
		Start: graph.Position{Line: int(r.Start.Line), Character: int(r.Start.Character)},
		End:   graph.Position{Line: int(r.End.Line), Character: int(r.End.Character)},
	}
}

// mapSymbolKind maps an LSP SymbolKind to a graph NodeKind. Field,
// Property, and Variable collapse to KindVariable; Method and Constructor
// collapse to KindMethod; Module, Namespace, and Package map to their own
// distinct kinds since the spec's data model draws that distinction even
// though LSP's SymbolKind enumeration keeps them adjacent; anything not
// named here maps to KindOther.
func mapSymbolKind(k protocol.SymbolKind) graph.NodeKind {
	switch k {
	case protocol.SymbolKindFile:
		return graph.KindFile
	case protocol.SymbolKindModule:
		return graph.KindModule
	case protocol.SymbolKindNamespace:
		return graph.KindNamespace
	case protocol.SymbolKindPackage:
		return graph.KindPackage
	case protocol.SymbolKindClass:
		return graph.KindClass
	case protocol.SymbolKindInterface:
		return graph.KindInterface
	case protocol.SymbolKindStruct:
		return graph.KindStruct
	case protocol.SymbolKindFunction:
		return graph.KindFunction
	case protocol.SymbolKindMethod, protocol.SymbolKindConstructor:
		return graph.KindMethod
	case protocol.SymbolKindField, protocol.SymbolKindProperty, protocol.SymbolKindVariable:
		return graph.KindVariable
	case protocol.SymbolKindConstant:
		return graph.KindConstant
	case protocol.SymbolKindEnum:
		return graph.KindEnum
	case protocol.SymbolKindEnumMember:
		return graph.KindEnumMember
	default:
		return graph.KindOther
	}
}

// invocableKinds are the symbol kinds MapReferences also records a CALLS
// edge for, in addition to the REFERENCES edge every resolvable location
// gets: a reference to a function or method is a call site, not just a
// mention.
var invocableKinds = map[graph.NodeKind]bool{
	graph.KindFunction: true,
	graph.KindMethod:   true,
}

// MapReferences converts a references response for the symbol identified
// by symbolNodeID into REFERENCES edges, one per unique call-site node,
// deduped by (source, target, type). Locations outside projectRootURI are
// suppressed. When symbolKind is invocable (a function or method), each
// location also yields a CALLS edge from the call site to the symbol.
func MapReferences(resolver NodeResolver, projectRootURI, symbolNodeID string, symbolKind graph.NodeKind, locations []protocol.Location) []graph.Edge {
	seen := make(map[string]bool)
	invocable := invocableKinds[symbolKind]

	var edges []graph.Edge

	for _, loc := range locations {
		uri := string(loc.URI)
		if !strings.HasPrefix(uri, projectRootURI) {
			continue
		}

		callSiteID, _, ok := resolver.NodeAt(uri, loc.Range.Start)
		if !ok {
			continue
		}

		if edge, ok := dedupedEdge(seen, symbolNodeID, callSiteID, graph.EdgeReferences); ok {
			edges = append(edges, edge)
		}

		if invocable {
			if edge, ok := dedupedEdge(seen, callSiteID, symbolNodeID, graph.EdgeCalls); ok {
				edges = append(edges, edge)
			}
		}
	}

	return edges
}

func dedupedEdge(seen map[string]bool, source, target string, edgeType graph.EdgeType) (graph.Edge, bool) {
	key := source + unitSeparator + target + unitSeparator + string(edgeType)
	if seen[key] {
		return graph.Edge{}, false
	}

	seen[key] = true

	return graph.Edge{
		ID:     edgeID(source, target, edgeType),
		Source: source,
		Target: target,
		Type:   edgeType,
	}, true
}

// MapImplementations converts an implementation response for the symbol
// identified by symbolNodeID into IMPLEMENTS or INHERITS_FROM edges: a
// target resolved to a Class or Struct node is INHERITS_FROM, everything
// else (including when the target's kind can't be resolved) defaults to
// IMPLEMENTS.
func MapImplementations(resolver NodeResolver, symbolNodeID string, locations []protocol.Location) []graph.Edge {
	seen := make(map[string]bool)

	var edges []graph.Edge

	for _, loc := range locations {
		targetID, kind, ok := resolver.NodeAt(string(loc.URI), loc.Range.Start)
		if !ok {
			continue
		}

		edgeType := graph.EdgeImplements
		if kind == graph.KindClass || kind == graph.KindStruct {
			edgeType = graph.EdgeInheritsFrom
		}

		key := symbolNodeID + unitSeparator + targetID + unitSeparator + string(edgeType)
		if seen[key] {
			continue
		}

		seen[key] = true

		edges = append(edges, graph.Edge{
			ID:     edgeID(symbolNodeID, targetID, edgeType),
			Source: symbolNodeID,
			Target: targetID,
			Type:   edgeType,
		})
	}

	return edges
}
