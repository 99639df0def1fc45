// Package merkle content-addresses conversation turns. Each node hashes its
// turn together with its parent's hash, so a conversation is a chain whose
// head hash identifies the whole history.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/chatkeep/pkg/llm"
)

// Node represents a single content-addressed turn in a Merkle DAG
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous node hash.
	// This will be nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	Turn llm.Turn `json:"turn"`
}

type input struct {
	Parent  string `json:"parent,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewNode creates a new node with the computed hash for the provided turn
func NewNode(turn llm.Turn, parent *Node) *Node {
	n := &Node{
		Turn: turn,
	}

	if parent != nil {
		n.ParentHash = &parent.Hash
	}

	n.Hash = n.computeHash()
	return n
}

// Chain builds the linked nodes for conv, root first. The last node is the
// head; an empty conversation has no nodes.
func Chain(conv llm.Conversation) []*Node {
	nodes := make([]*Node, 0, len(conv))
	var parent *Node
	for _, turn := range conv {
		n := NewNode(turn, parent)
		nodes = append(nodes, n)
		parent = n
	}
	return nodes
}

// Head returns the hash of the last node in the chain for conv, or "" when
// conv is empty.
func Head(conv llm.Conversation) string {
	nodes := Chain(conv)
	if len(nodes) == 0 {
		return ""
	}
	return nodes[len(nodes)-1].Hash
}

func (n *Node) computeHash() string {
	i := &input{
		Role:    string(n.Turn.Role),
		Content: n.Turn.Content,
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Canonical JSON encoding for deterministic hashing
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
