// Package crdt implements a character-level replicated growable array
// (RGA) for collaborative plain-text editing. A Replica converts local
// positional edits into globally unique character operations and
// integrates remote operations into a locally consistent sequence such
// that all replicas that have applied the same set of operations agree
// on the materialized text, regardless of arrival order.
package crdt

import "fmt"

// GlobalID totally orders characters across every replica: a pair of
// (Counter, SiteID). Each site maintains a local monotonically
// increasing counter; when a site creates a new character it stamps it
// with (maxCounterObservedAnywhere+1, ownSiteID), guaranteeing global
// uniqueness without coordination. Comparison is lexicographic on
// (Counter, SiteID).
type GlobalID struct {
	Counter int64
	SiteID  int64
}

// Greater reports whether id sorts strictly after other under the
// lexicographic (Counter, SiteID) order. Among concurrent inserts
// sharing the same afterID, the RGA tie-break sorts the Greater id
// first — see Replica.integrate.
func (id GlobalID) Greater(other GlobalID) bool {
	if id.Counter != other.Counter {
		return id.Counter > other.Counter
	}
	return id.SiteID > other.SiteID
}

// Less reports whether id sorts strictly before other.
func (id GlobalID) Less(other GlobalID) bool {
	return other.Greater(id)
}

func (id GlobalID) String() string {
	return fmt.Sprintf("%d@%d", id.Counter, id.SiteID)
}
