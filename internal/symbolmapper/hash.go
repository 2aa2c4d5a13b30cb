package symbolmapper

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/graphling/graphling/pkg/graph"
)

// unitSeparator joins the fields of an identity tuple before hashing, per
// the 0x1F-joined attribute convention.
const unitSeparator = "\x1f"

// hashLo128 folds payload into a deterministic 128-bit identifier by
// hashing it twice with xxhash under two distinct domain-separation
// prefixes and concatenating the results. This gives every node and edge a
// stable id that's a pure function of its identity tuple, so concurrent
// workers produce identical ids for the same symbol without coordination,
// without pulling in a dedicated 128-bit hash library the rest of the pack
// doesn't use.
func hashLo128(payload []byte) string {
	var buf [16]byte

	h1 := xxhash.Sum64(append([]byte{0x00}, payload...))
	h2 := xxhash.Sum64(append([]byte{0xff}, payload...))

	binary.BigEndian.PutUint64(buf[0:8], h1)
	binary.BigEndian.PutUint64(buf[8:16], h2)

	return hex.EncodeToString(buf[:])
}

// nodeID computes node_id = hash_lo128(project_id||0x1F||kind||0x1F||fqn||0x1F||uri).
func nodeID(projectID string, kind graph.NodeKind, fqn, uri string) string {
	return hashLo128([]byte(strings.Join([]string{projectID, string(kind), fqn, uri}, unitSeparator)))
}

// edgeID identifies an edge by its (source, target, type) triple, so
// duplicate edges discovered via different LSP calls collapse to one id.
func edgeID(source, target string, typ graph.EdgeType) string {
	return hashLo128([]byte(strings.Join([]string{source, target, string(typ)}, unitSeparator)))
}

// NodeID exposes the node identity hash to callers outside this package
// that need to address a node the mapper itself never produces, such as
// the Project root the orchestrator synthesizes once per job.
func NodeID(projectID string, kind graph.NodeKind, fqn, uri string) string {
	return nodeID(projectID, kind, fqn, uri)
}

// EdgeID exposes the edge identity hash for the same reason, e.g. wiring a
// CONTAINS edge from the Project root to a File node MapDocumentSymbols
// returned.
func EdgeID(source, target string, typ graph.EdgeType) string {
	return edgeID(source, target, typ)
}
