// Package series talks to the time-series store that records object store
// operations: it builds filter queries, decodes series names and points, and
// executes queries over HTTP.
package series

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is the blob operation recorded by an ops series.
type Op string

// Operations that change the stored size of a container.
const (
	OpPut    Op = "PUT"
	OpDelete Op = "DELETE"
)

// Kind distinguishes operation event series from baseline snapshot series.
type Kind uint8

// Series kinds.
const (
	KindOps Kind = iota + 1
	KindSnapshot
)

// AnyContainer is the container pattern that matches every container of a store.
const AnyContainer = ".*"

const (
	opsPrefix       = "ops.provider."
	snapshotPrefix  = "stats.provider."
	containerMarker = ".container."
	opMarker        = ".op."
)

// Name is the decoded identity of a series.
type Name struct {
	Kind      Kind
	StoreID   int
	Container string
	Op        Op // empty for snapshot series
}

// OpsName returns the name of the ops series for one store, container and operation.
func OpsName(storeID int, container string, op Op) Name {
	return Name{Kind: KindOps, StoreID: storeID, Container: container, Op: op}
}

// SnapshotName returns the name of the baseline series for one store and container.
func SnapshotName(storeID int, container string) Name {
	return Name{Kind: KindSnapshot, StoreID: storeID, Container: container}
}

// String encodes the name in the form stored by the time-series store.
func (n Name) String() string {
	switch n.Kind {
	case KindOps:
		return fmt.Sprintf("%s%d%s%s%s%s", opsPrefix, n.StoreID, containerMarker, n.Container, opMarker, n.Op)
	case KindSnapshot:
		return fmt.Sprintf("%s%d%s%s", snapshotPrefix, n.StoreID, containerMarker, n.Container)
	default:
		return ""
	}
}

// ParseName decodes a series name such as
// "ops.provider.3.container.photos.op.PUT" or "stats.provider.3.container.photos".
func ParseName(s string) (Name, error) {
	var n Name
	var rest string
	switch {
	case strings.HasPrefix(s, opsPrefix):
		n.Kind = KindOps
		rest = s[len(opsPrefix):]
	case strings.HasPrefix(s, snapshotPrefix):
		n.Kind = KindSnapshot
		rest = s[len(snapshotPrefix):]
	default:
		return Name{}, fmt.Errorf("%w: %q: unknown prefix", ErrMalformedName, s)
	}

	idx := strings.Index(rest, containerMarker)
	if idx <= 0 {
		return Name{}, fmt.Errorf("%w: %q: no container", ErrMalformedName, s)
	}
	id, err := strconv.Atoi(rest[:idx])
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q: store id: %v", ErrMalformedName, s, err)
	}
	n.StoreID = id
	rest = rest[idx+len(containerMarker):]

	if n.Kind == KindOps {
		// Container names may contain dots, so the op is taken from the last marker.
		idx = strings.LastIndex(rest, opMarker)
		if idx < 0 {
			return Name{}, fmt.Errorf("%w: %q: no op", ErrMalformedName, s)
		}
		switch op := Op(rest[idx+len(opMarker):]); op {
		case OpPut, OpDelete:
			n.Op = op
		default:
			return Name{}, fmt.Errorf("%w: %q: unknown op %q", ErrMalformedName, s, op)
		}
		rest = rest[:idx]
	}

	if rest == "" {
		return Name{}, fmt.Errorf("%w: %q: empty container", ErrMalformedName, s)
	}
	n.Container = rest
	return n, nil
}
