package merkle

import "context"

// Storer persists nodes by hash. De-duplication happens via content-addressing:
// an identical turn with an identical parent produces an identical hash and is
// stored once.
type Storer interface {
	// Put stores a node and reports whether it was new.
	Put(ctx context.Context, node *Node) (bool, error)

	// Get retrieves a node by its hash. Returns ErrNotFound if the node doesn't exist.
	Get(ctx context.Context, hash string) (*Node, error)

	// Ancestry returns the path from a node back to its root (node first, root last).
	Ancestry(ctx context.Context, hash string) ([]*Node, error)
}

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}

	return "node not found: " + e.Hash
}

// Reverse converts an ancestry (head first) into a root-first slice of nodes.
func Reverse(ancestry []*Node) []*Node {
	out := make([]*Node, len(ancestry))
	for i, n := range ancestry {
		out[len(ancestry)-1-i] = n
	}
	return out
}
