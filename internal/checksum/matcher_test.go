package checksum

import (
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Fingerprint(nil); got != empty {
		t.Fatalf("Fingerprint(nil) = %s", got)
	}
	fromReader, err := FingerprintReader(strings.NewReader("loan book"))
	if err != nil || fromReader != Fingerprint([]byte("loan book")) {
		t.Fatalf("FingerprintReader = %s, %v", fromReader, err)
	}

	m := NewChecksumMatcher(Fingerprint([]byte("a,b\n1,2\n")))
	if ok, err := m.Match([]byte("a,b\n1,2\n")); !ok || err != nil {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if ok, _ := m.Match([]byte("a,b\n1,3\n")); ok {
		t.Fatal("different content matched")
	}
	if _, err := NewChecksumMatcher("").Match(nil); err == nil {
		t.Fatal("empty expectation accepted")
	}
}
