package kv

import "testing"

func TestStorePutGetRoundtrip(t *testing.T) {
	s := NewStore()
	s.Put("k", Entry{Value: "v1", TS: 1, WriterID: "a"})

	got, ok := s.Get("k")
	if !ok || got.Value != "v1" {
		t.Fatalf("expected v1, got %+v ok=%v", got, ok)
	}
}

func TestStorePutKeepsHigherTimestamp(t *testing.T) {
	s := NewStore()
	s.Put("k", Entry{Value: "old", TS: 5, WriterID: "a"})
	s.Put("k", Entry{Value: "new", TS: 10, WriterID: "a"})

	got, _ := s.Get("k")
	if got.Value != "new" {
		t.Fatalf("expected higher-ts write to win, got %q", got.Value)
	}
}

func TestStorePutRejectsLowerTimestamp(t *testing.T) {
	s := NewStore()
	s.Put("k", Entry{Value: "new", TS: 10, WriterID: "a"})
	s.Put("k", Entry{Value: "stale", TS: 5, WriterID: "a"})

	got, _ := s.Get("k")
	if got.Value != "new" {
		t.Fatalf("expected stale write to be rejected, got %q", got.Value)
	}
}

func TestStorePutBreaksTiesByWriterID(t *testing.T) {
	s := NewStore()
	s.Put("k", Entry{Value: "from-b", TS: 7, WriterID: "b"})
	s.Put("k", Entry{Value: "from-a", TS: 7, WriterID: "a"})

	got, _ := s.Get("k")
	if got.Value != "from-b" {
		t.Fatalf("expected writer 'b' (lexicographically greater) to win tie, got %q", got.Value)
	}
}

func TestStorePutConvergesRegardlessOfOrder(t *testing.T) {
	versions := []Entry{
		{Value: "v1", TS: 1, WriterID: "a"},
		{Value: "v3", TS: 3, WriterID: "a"},
		{Value: "v2", TS: 2, WriterID: "a"},
	}

	forward := NewStore()
	for _, v := range versions {
		forward.Put("k", v)
	}
	reverse := NewStore()
	for i := len(versions) - 1; i >= 0; i-- {
		reverse.Put("k", versions[i])
	}

	fGot, _ := forward.Get("k")
	rGot, _ := reverse.Get("k")
	if fGot.Value != "v3" || rGot.Value != "v3" {
		t.Fatalf("expected both orders to converge on v3, got forward=%q reverse=%q", fGot.Value, rGot.Value)
	}
}

func TestStoreDumpIsACopy(t *testing.T) {
	s := NewStore()
	s.Put("k", Entry{Value: "v1", TS: 1, WriterID: "a"})

	dump := s.Dump()
	dump["k"] = Entry{Value: "mutated", TS: 99, WriterID: "z"}

	got, _ := s.Get("k")
	if got.Value != "v1" {
		t.Fatalf("mutating Dump's result affected the store: %q", got.Value)
	}
}

func TestStoreGetMissingKey(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("expected miss for an unset key")
	}
}
