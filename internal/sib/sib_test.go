package sib

import (
	"bytes"
	"testing"
)

// fakeParse mimics a fixed-size all-or-nothing parser: it succeeds only
// once at least `need` bytes are available, consuming exactly `need`.
func fakeParse(b []byte, need int) (consumed int, ok bool) {
	if len(b) < need {
		return 0, false
	}
	return need, true
}

func TestLongFastPath(t *testing.T) {
	var buf Buffer
	input := []byte("0123456789")

	view, origStored := buf.Begin(input)
	if view.Stitched {
		t.Fatalf("expected Long view on first call with empty storage")
	}
	if &view.Bytes[0] != &input[0] {
		t.Fatalf("Long view must alias the caller's buffer directly")
	}
	consumed, ok := fakeParse(view.Bytes, 4)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	rest := buf.Consume(consumed, origStored, input)
	if !bytes.Equal(rest, []byte("456789")) {
		t.Fatalf("got rest %q, want %q", rest, "456789")
	}
	if buf.Pending() != 0 {
		t.Fatalf("expected storage cleared after consume, got %d pending", buf.Pending())
	}
}

func TestStitchAcrossCalls(t *testing.T) {
	var buf Buffer

	// Call 1: only 2 bytes available, need 6.
	call1 := []byte("ab")
	view, origStored := buf.Begin(call1)
	if view.Stitched {
		t.Fatalf("first call should be Long (storage starts empty)")
	}
	if _, ok := fakeParse(view.Bytes, 6); ok {
		t.Fatalf("parse should not succeed yet")
	}
	buf.Extend(view.Bytes)
	if buf.Pending() != 2 {
		t.Fatalf("expected 2 bytes stashed, got %d", buf.Pending())
	}

	// Call 2: 3 more bytes arrive, still not enough.
	call2 := []byte("cde")
	view, origStored = buf.Begin(call2)
	if !view.Stitched {
		t.Fatalf("second call should be Short (storage has leftover bytes)")
	}
	if !bytes.Equal(view.Bytes, []byte("abcde")) {
		t.Fatalf("stitched view = %q, want %q", view.Bytes, "abcde")
	}
	if _, ok := fakeParse(view.Bytes, 6); ok {
		t.Fatalf("parse should still not succeed (5 < 6)")
	}
	_ = origStored

	// Call 3: one more byte closes it out, plus trailing data.
	call3 := []byte("fXYZ")
	view, origStored = buf.Begin(call3)
	if !view.Stitched {
		t.Fatalf("third call should still be Short")
	}
	if !bytes.Equal(view.Bytes, []byte("abcdefXYZ")) {
		t.Fatalf("stitched view = %q, want %q", view.Bytes, "abcdefXYZ")
	}
	consumed, ok := fakeParse(view.Bytes, 6)
	if !ok {
		t.Fatalf("expected parse to succeed with 6 bytes stitched")
	}
	rest := buf.Consume(consumed, origStored, call3)
	if !bytes.Equal(rest, []byte("XYZ")) {
		t.Fatalf("got rest %q, want %q", rest, "XYZ")
	}
	if buf.Pending() != 0 {
		t.Fatalf("expected storage cleared, got %d pending", buf.Pending())
	}
}

func TestConsumeNoOpOnZero(t *testing.T) {
	var buf Buffer
	input := []byte("hello")
	view, origStored := buf.Begin(input)
	rest := buf.Consume(0, origStored, view.Bytes)
	if !bytes.Equal(rest, input) {
		t.Fatalf("Consume(0, ...) must be a no-op, got %q", rest)
	}
}

func TestConsumePanicsOnStitchedPrefixOnly(t *testing.T) {
	var buf Buffer
	buf.Extend([]byte("ab"))
	view, origStored := buf.Begin([]byte("cde"))
	if !view.Stitched {
		t.Fatalf("expected stitched view")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when consumed <= origStored")
		}
	}()
	buf.Consume(origStored, origStored, []byte("cde"))
}

func TestExtendRespectsBudget(t *testing.T) {
	var buf Buffer
	big := bytes.Repeat([]byte("z"), Budget+20)
	added := buf.Extend(big)
	if added != Budget {
		t.Fatalf("Extend added %d bytes, want %d (budget cap)", added, Budget)
	}
	if more := buf.Extend([]byte("x")); more != 0 {
		t.Fatalf("Extend beyond budget should add 0, got %d", more)
	}
}
