// Package wire defines the JSON wire shapes exchanged between a client
// replica and the server, and the codec that decodes an incoming session
// message into its concrete typed form. Every message carries its own
// Type discriminant field rather than being wrapped in a shared envelope
// struct.
package wire

import "github.com/collabtext/collabd/internal/crdt"

// GID is the wire shape of a crdt.GlobalID.
type GID struct {
	Counter int64 `json:"counter"`
	SiteID  int64 `json:"siteId"`
}

func gidFromCRDT(id crdt.GlobalID) GID {
	return GID{Counter: id.Counter, SiteID: id.SiteID}
}

func (g GID) toCRDT() crdt.GlobalID {
	return crdt.GlobalID{Counter: g.Counter, SiteID: g.SiteID}
}

const (
	OpKindInsert = "insert"
	OpKindDelete = "delete"
)

// Op is the wire shape of a crdt.Operation: {type, gid, char, afterGid}.
// Char is a single-rune string for insert, null for delete. AfterGid is
// null for an insert at the head of the sequence and unused for delete.
type Op struct {
	Type     string  `json:"type"`
	GID      GID     `json:"gid"`
	Char     *string `json:"char"`
	AfterGID *GID    `json:"afterGid"`
}

// FromOperation converts a crdt.Operation to its wire shape.
func FromOperation(op crdt.Operation) Op {
	w := Op{GID: gidFromCRDT(op.ID)}
	switch op.Kind {
	case crdt.OpInsert:
		w.Type = OpKindInsert
		c := string(op.Char)
		w.Char = &c
		if op.After != nil {
			after := gidFromCRDT(*op.After)
			w.AfterGID = &after
		}
	case crdt.OpDelete:
		w.Type = OpKindDelete
	}
	return w
}

// ToOperation converts a wire Op back to a crdt.Operation. Returns an
// error if Type is not a recognized operation kind.
func (w Op) ToOperation() (crdt.Operation, error) {
	switch w.Type {
	case OpKindInsert:
		var ch rune
		if w.Char != nil {
			for _, r := range *w.Char {
				ch = r
				break
			}
		}
		op := crdt.Operation{Kind: crdt.OpInsert, ID: w.GID.toCRDT(), Char: ch}
		if w.AfterGID != nil {
			after := w.AfterGID.toCRDT()
			op.After = &after
		}
		return op, nil
	case OpKindDelete:
		return crdt.Operation{Kind: crdt.OpDelete, ID: w.GID.toCRDT()}, nil
	default:
		return crdt.Operation{}, ErrUnknownType
	}
}

// FromOperations converts a slice of crdt.Operation to their wire shape.
func FromOperations(ops []crdt.Operation) []Op {
	out := make([]Op, len(ops))
	for i, op := range ops {
		out[i] = FromOperation(op)
	}
	return out
}

// ToOperations converts a slice of wire Op back to crdt.Operation.
func ToOperations(ops []Op) ([]crdt.Operation, error) {
	out := make([]crdt.Operation, len(ops))
	for i, w := range ops {
		op, err := w.ToOperation()
		if err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}
