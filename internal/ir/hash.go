package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGraph = "alloclower/graph/v1"
	DomainUnit  = "alloclower/unit/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the content hash of the live part of g. Two graphs
// with the same live nodes, operators, parameters and edges have the same
// fingerprint regardless of how many dead nodes they carry.
func Fingerprint(g *Graph) (string, error) {
	canonical, err := MarshalCanonical(canonicalGraph(g))
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// UnitDigest hashes the source text of a compilation unit.
func UnitDigest(source []byte) string {
	return hashWithDomain(DomainUnit, source)
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when the graph is known to be well formed.
func MustFingerprint(g *Graph) string {
	fp, err := Fingerprint(g)
	if err != nil {
		panic(err)
	}
	return fp
}

// canonicalGraph renders the live nodes with dense ids so that dead nodes
// do not perturb the result.
func canonicalGraph(g *Graph) []any {
	live := g.LiveNodes()
	dense := make(map[NodeID]int, len(live))
	for i, id := range live {
		dense[id] = i
	}
	out := make([]any, 0, len(live))
	for _, id := range live {
		n := g.Node(id)
		inputs := make([]any, len(n.inputs))
		for i, in := range n.inputs {
			inputs[i] = dense[in]
		}
		params := ""
		if n.op.Params != nil {
			params = n.op.Params.String()
		}
		out = append(out, map[string]any{
			"op":     n.op.Opcode.String(),
			"params": params,
			"values": n.op.ValueIn,
			"inputs": inputs,
			"type":   n.typ.String(),
		})
	}
	return out
}
