package series

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Query is a filter expression in the time-series store's query language.
type Query string

func (q Query) String() string { return string(q) }

// Kind reports whether q selects snapshot or ops series.
func (q Query) Kind() Kind {
	if strings.Contains(string(q), snapshotSource) {
		return KindSnapshot
	}
	return KindOps
}

// String form of Kind, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case KindOps:
		return "ops"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// OpsQuery selects the size events of one operation for a store and a
// container pattern. The pattern is either an exact container name or
// AnyContainer. When since is non-nil only events strictly after it are
// selected, which lets callers replay just the activity newer than a snapshot.
func OpsQuery(storeID int, container string, op Op, since *time.Time) Query {
	var b strings.Builder
	fmt.Fprintf(&b, `select * from /^ops\.provider\.%d\.container\.%s\.op\.%s$/`,
		storeID, containerPattern(container), op)
	if since != nil {
		fmt.Fprintf(&b, " where time > %dms", since.UnixMilli())
	}
	// Deduplication keeps the earliest event per key.
	b.WriteString(" order asc")
	return Query(b.String())
}

// SnapshotQuery selects the most recent baseline point of every known
// container of a store.
func SnapshotQuery(storeID int) Query {
	return Query(fmt.Sprintf(`select * from %s%d\.container\..*$/ limit 1`, snapshotSource, storeID))
}

const snapshotSource = `/^stats\.provider\.`

func containerPattern(container string) string {
	if container == AnyContainer {
		return AnyContainer
	}
	return regexp.QuoteMeta(container)
}
