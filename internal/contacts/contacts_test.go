package contacts

import (
	"bytes"
	"testing"
)

func TestPeerIDStable(t *testing.T) {
	pub := bytes.Repeat([]byte{0x07}, 32)
	a := PeerID(pub)
	b := PeerID(pub)
	if a == "" || a != b {
		t.Fatalf("peer id not stable: %q vs %q", a, b)
	}
	other := PeerID(bytes.Repeat([]byte{0x08}, 32))
	if a == other {
		t.Fatal("distinct keys share a peer id")
	}
}

func TestBookRoundTrip(t *testing.T) {
	b := NewBook()
	b.Add("peer-1", "ABCDEF")

	key, ok := b.NostrKeyFor("peer-1")
	if !ok || key != "abcdef" {
		t.Fatalf("NostrKeyFor = %q, %v", key, ok)
	}
	peer, ok := b.PeerIDFor("abcdef")
	if !ok || peer != "peer-1" {
		t.Fatalf("PeerIDFor = %q, %v", peer, ok)
	}
	if _, ok := b.NostrKeyFor("unknown"); ok {
		t.Fatal("resolved unknown peer")
	}
}

func TestBookReplacesMapping(t *testing.T) {
	b := NewBook()
	b.Add("peer-1", "aa")
	b.Add("peer-1", "bb")

	if key, _ := b.NostrKeyFor("peer-1"); key != "bb" {
		t.Fatalf("key = %q, want bb", key)
	}
	if _, ok := b.PeerIDFor("aa"); ok {
		t.Fatal("stale reverse mapping survived")
	}
}

func TestBookIgnoresEmpty(t *testing.T) {
	b := NewBook()
	b.Add("", "aa")
	b.Add("peer-1", "  ")
	if _, ok := b.PeerIDFor("aa"); ok {
		t.Fatal("stored mapping with empty peer id")
	}
	if _, ok := b.NostrKeyFor("peer-1"); ok {
		t.Fatal("stored mapping with empty key")
	}
}
