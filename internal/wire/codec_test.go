package wire

import (
	"errors"
	"testing"

	"github.com/collabtext/collabd/internal/crdt"
)

func TestOpRoundTrip(t *testing.T) {
	after := crdt.GlobalID{Counter: 1, SiteID: 2}
	orig := crdt.Operation{Kind: crdt.OpInsert, ID: crdt.GlobalID{Counter: 2, SiteID: 2}, Char: 'x', After: &after}

	w := FromOperation(orig)
	if w.Type != OpKindInsert {
		t.Errorf("Type = %q, want %q", w.Type, OpKindInsert)
	}
	if w.GID.Counter != 2 || w.GID.SiteID != 2 {
		t.Errorf("GID = %+v, want {2 2}", w.GID)
	}
	if w.Char == nil || *w.Char != "x" {
		t.Errorf("Char = %v, want \"x\"", w.Char)
	}
	if w.AfterGID == nil || *w.AfterGID != (GID{Counter: 1, SiteID: 2}) {
		t.Errorf("AfterGID = %v, want {1 2}", w.AfterGID)
	}

	back, err := w.ToOperation()
	if err != nil {
		t.Fatalf("ToOperation: %v", err)
	}
	if back.Kind != orig.Kind || back.ID != orig.ID || back.Char != orig.Char || back.After == nil || *back.After != *orig.After {
		t.Errorf("round trip = %+v, want %+v", back, orig)
	}
}

func TestOpDeleteRoundTrip(t *testing.T) {
	orig := crdt.Operation{Kind: crdt.OpDelete, ID: crdt.GlobalID{Counter: 5, SiteID: 1}}
	w := FromOperation(orig)
	if w.Type != OpKindDelete {
		t.Errorf("Type = %q, want %q", w.Type, OpKindDelete)
	}
	back, err := w.ToOperation()
	if err != nil {
		t.Fatalf("ToOperation: %v", err)
	}
	if back != orig {
		t.Errorf("round trip = %+v, want %+v", back, orig)
	}
}

func TestDecodeDispatchesByType(t *testing.T) {
	data := []byte(`{"type":"setSiteId","siteId":7}`)
	v, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	msg, ok := v.(SetSiteID)
	if !ok {
		t.Fatalf("Decode returned %T, want SetSiteID", v)
	}
	if msg.SiteID != 7 {
		t.Errorf("SiteID = %d, want 7", msg.SiteID)
	}
}

func TestDecodeCrdtEvents(t *testing.T) {
	data := []byte(`{"type":"crdtEvents","events":[{"type":"insert","gid":{"counter":1,"siteId":1},"char":"a"}]}`)
	v, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	msg, ok := v.(CrdtEvents)
	if !ok {
		t.Fatalf("Decode returned %T, want CrdtEvents", v)
	}
	if len(msg.Events) != 1 {
		t.Fatalf("Events len = %d, want 1", len(msg.Events))
	}
	ops, err := ToOperations(msg.Events)
	if err != nil {
		t.Fatalf("ToOperations: %v", err)
	}
	if ops[0].Char != 'a' {
		t.Errorf("Char = %q, want 'a'", ops[0].Char)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`))
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("error = %v, want wrapping ErrUnknownType", err)
	}
}

func TestEncodeThenDecode(t *testing.T) {
	orig := NewSitePresence(3, "ada", true)
	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	msg, ok := v.(SitePresence)
	if !ok {
		t.Fatalf("Decode returned %T, want SitePresence", v)
	}
	if msg != orig {
		t.Errorf("round trip = %+v, want %+v", msg, orig)
	}
}
