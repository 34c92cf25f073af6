package digest

import "testing"

func TestSumKnownVector(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Fatalf("Sum(abc) = %s, want %s", got, want)
	}
}

func TestSumDeterministic(t *testing.T) {
	data := []byte("payload under test")
	if Sum(data) != Sum(data) {
		t.Fatal("same input produced different digests")
	}
	if Sum(data) == Sum([]byte("payload under tesu")) {
		t.Fatal("different inputs produced the same digest")
	}
	if len(Sum(nil)) != 64 {
		t.Fatal("digest is not 64 hex chars")
	}
}
