// internal/nodeid/path.go
package nodeid

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Path addresses a node across nested graphs, starting below the root graph.
type Path []NodeID

// String serializes the path into its canonical dot-separated form.
func (p Path) String() string {
	var sb strings.Builder
	for i, id := range p {
		if i > 0 {
			sb.WriteRune('.')
		}
		sb.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return sb.String()
}

// Equal checks two paths for equality.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// Child returns a new path extended by id.
func (p Path) Child(id NodeID) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, id)
}

// ParsePath creates a Path from its canonical string representation.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	var p Path
	for _, seg := range strings.Split(raw, ".") {
		if seg == "" {
			return nil, fmt.Errorf("path contains empty segment")
		}
		v, err := strconv.ParseUint(seg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", seg, err)
		}
		if NodeID(v) == InvalidNodeID {
			return nil, fmt.Errorf("invalid path segment %q: reserved id", seg)
		}
		p = append(p, NodeID(v))
	}
	return p, nil
}
