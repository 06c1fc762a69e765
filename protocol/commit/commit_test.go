package commit

import "testing"

func TestRequestCommitmentDeterministic(t *testing.T) {
	h := NewBlake3Hasher()
	secret, err := NewNullifierSecret()
	if err != nil {
		t.Fatalf("NewNullifierSecret: %v", err)
	}

	a := RequestCommitment(h, "user-1", 3_000_000_000, 1_700_000_000, secret)
	b := RequestCommitment(h, "user-1", 3_000_000_000, 1_700_000_000, secret)
	if a != b {
		t.Fatal("same inputs produced different commitments")
	}
	if a.IsZero() {
		t.Fatal("commitment is the zero sentinel")
	}
}

func TestCommitmentsDifferByField(t *testing.T) {
	h := NewBlake3Hasher()
	var secret Word
	secret[0] = 1

	base := RequestCommitment(h, "user-1", 100, 500, secret)
	if got := RequestCommitment(h, "user-2", 100, 500, secret); got == base {
		t.Fatal("different user produced identical commitment")
	}
	if got := RequestCommitment(h, "user-1", 101, 500, secret); got == base {
		t.Fatal("different amount produced identical commitment")
	}
	if got := RequestCommitment(h, "user-1", 100, 501, secret); got == base {
		t.Fatal("different cooldown produced identical commitment")
	}

	var other Word
	other[0] = 2
	if got := RequestCommitment(h, "user-1", 100, 500, other); got == base {
		t.Fatal("different secret produced identical commitment")
	}
}

func TestDomainSeparation(t *testing.T) {
	h := NewBlake3Hasher()
	var secret Word
	secret[0] = 7

	req := RequestCommitment(h, "id", 100, 0, secret)
	off := OfferCommitment(h, "id", 100, 0, secret)
	if req == off {
		t.Fatal("request and offer domains collided")
	}

	null := Nullifier(h, secret)
	if null == req || null == off {
		t.Fatal("nullifier domain collided with commitment domain")
	}
}

func TestLengthFraming(t *testing.T) {
	h := NewBlake3Hasher()
	// "ab" + "c" must not hash equal to "a" + "bc".
	a := h.Sum("d", []byte("ab"), []byte("c"))
	b := h.Sum("d", []byte("a"), []byte("bc"))
	if a == b {
		t.Fatal("field boundaries are not framed")
	}
}

func TestParseWordRoundTrip(t *testing.T) {
	h := NewBlake3Hasher()
	w := h.Sum("d", []byte("x"))

	parsed, err := ParseWord(w.String())
	if err != nil {
		t.Fatalf("ParseWord: %v", err)
	}
	if parsed != w {
		t.Fatal("round trip mismatch")
	}

	if _, err := ParseWord("abcd"); err == nil {
		t.Fatal("expected error for short input")
	}
	if _, err := ParseWord(string(make([]byte, 64))); err == nil {
		t.Fatal("expected error for non-hex input")
	}
}
