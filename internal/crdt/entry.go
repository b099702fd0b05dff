package crdt

// CharEntry is one element of a replica's backing sequence: the
// character, its GlobalID, and a visibility flag. Tombstones (Visible ==
// false) are never physically removed during normal operation; they
// vanish only at compaction (see the room package).
type CharEntry struct {
	ID      GlobalID
	Char    rune
	Visible bool
}
