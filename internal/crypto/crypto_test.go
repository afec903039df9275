package icrypto

import (
	"bytes"
	"testing"
)

func TestAADRecord(t *testing.T) {
	aad1 := AADRecord("session", "KV", "accessToken", 1)
	aad2 := AADRecord("session", "KV", "accessToken", 1)
	if !bytes.Equal(aad1, aad2) {
		t.Error("AADRecord should be deterministic")
	}

	if bytes.Equal(aad1, AADRecord("session", "KV", "user", 1)) {
		t.Error("AADRecord should differ for different record ids")
	}
	if bytes.Equal(aad1, AADRecord("session", "KV", "accessToken", 2)) {
		t.Error("AADRecord should differ for different versions")
	}
}

func TestAADIsLengthPrefixed(t *testing.T) {
	// Without length prefixes these two would concatenate to the same bytes.
	a := AADRecord("ab", "c", "d", 1)
	b := AADRecord("a", "bc", "d", 1)
	if bytes.Equal(a, b) {
		t.Error("AAD parts must not be ambiguous under concatenation")
	}
}

func TestBuildAADEncodings(t *testing.T) {
	got := buildAAD("x", []byte{0xff}, uint64(2), 3)
	want := []byte{
		0, 0, 0, 1, 'x',
		0, 0, 0, 1, 0xff,
		0, 0, 0, 0, 0, 0, 0, 2,
		0, 0, 0, 3,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("buildAAD = %v, want %v", got, want)
	}
}
