package crypto

import (
	"bytes"
	"testing"
)

func TestSimpleHashFromHashes(t *testing.T) {
	a := SHA256([]byte("a"))
	b := SHA256([]byte("b"))
	c := SHA256([]byte("c"))

	if !bytes.Equal(SimpleHashFromHashes(nil), SHA256(nil)) {
		t.Fatalf("empty root should be SHA256 of nothing")
	}

	if !bytes.Equal(SimpleHashFromHashes([][]byte{a}), a) {
		t.Fatalf("single leaf root should be the leaf")
	}

	ab := SimpleHashFromTwoHashes(a, b)
	if !bytes.Equal(SimpleHashFromHashes([][]byte{a, b}), ab) {
		t.Fatalf("two leaves")
	}

	cc := SimpleHashFromTwoHashes(c, c)
	want := SimpleHashFromTwoHashes(ab, cc)
	if !bytes.Equal(SimpleHashFromHashes([][]byte{a, b, c}), want) {
		t.Fatalf("three leaves")
	}

	if bytes.Equal(SimpleHashFromHashes([][]byte{a, b}), SimpleHashFromHashes([][]byte{b, a})) {
		t.Fatalf("root should depend on order")
	}
}
