// Package sib implements the split input buffer that lets the all-or-nothing
// fixed-size header parsers in the zip and gzip packages work over input
// arriving in arbitrary chunks, without copying in the common case where a
// header happens to fit entirely within one chunk.
package sib

// Budget is the stitch buffer's capacity: a safe ceiling on the largest
// fixed-size prefix any header parser needs before it either succeeds or
// reports NeedsMore. The largest such prefixes in this protocol are the
// ZIP local-file-header fixed portion (30 bytes) and the central-directory
// fixed portion (46 bytes); 80 leaves headroom for the GZIP conditional
// prefix and an extra-field sub-header on top. Variable-length payloads
// (filenames, extra-field bodies, GZIP comments) are handled separately,
// by length- or NUL-terminator-driven accumulators once a fixed prefix has
// told the caller how many more bytes to expect — they never flow through
// this buffer.
const Budget = 80

// Buffer is a bounded prefix-stitching buffer. Zero value is ready to use.
type Buffer struct {
	storage [Budget]byte
	stored  int
}

// View is the byte slice a header parser should be called with.
type View struct {
	// Bytes is the slice to parse.
	Bytes []byte
	// Stitched is true when Bytes aliases internal storage (the "Short"
	// state); false when it aliases the caller's own buffer directly
	// (the "Long" state, the zero-copy fast path).
	Stitched bool
}

// Begin adopts any bytes retained from a prior suspended parse and
// combines them with newly available input, per the take-storage
// protocol. input is the caller's fresh bytes for this call (already
// advanced past anything consumed earlier). It returns the view to hand
// to the header parser and origStored, the count of bytes in view.Bytes
// that came from storage rather than from input — callers must pass this
// back to Consume.
func (b *Buffer) Begin(input []byte) (View, int) {
	orig := b.stored
	if orig > 0 {
		b.stash(input)
		return View{Bytes: b.storage[:b.stored], Stitched: true}, orig
	}
	return View{Bytes: input, Stitched: false}, 0
}

// Extend folds more of a Long-view input into storage after a NeedsMore
// result, per the extend protocol: it is how a parse that failed against
// the caller's raw buffer is remembered for stitching with the next call.
// It returns the number of bytes added; 0 means the budget is exhausted
// (a parser logic error, since every fixed prefix fits within Budget) or
// there was nothing left to add.
func (b *Buffer) Extend(input []byte) int {
	return b.stash(input)
}

func (b *Buffer) stash(data []byte) int {
	room := Budget - b.stored
	if room <= 0 || len(data) == 0 {
		return 0
	}
	n := len(data)
	if n > room {
		n = room
	}
	copy(b.storage[b.stored:], data[:n])
	b.stored += n
	return n
}

// Consume applies the consume protocol: n is how many bytes the header
// parser reported it consumed from the most recent View.Bytes, origStored
// is the value Begin returned alongside that view, and input is the same caller-owned slice most recently passed to
// Begin. Consume returns the Long-view remainder to resume parsing from;
// by the time it returns, the buffer has switched back to the Long state
// regardless of whether this call started Short.
func (b *Buffer) Consume(n, origStored int, input []byte) []byte {
	if n == 0 {
		return input
	}
	if origStored >= n {
		panic("sib: parser consumed only previously-stitched bytes without making progress on new input")
	}
	used := n - origStored
	b.stored = 0
	return input[used:]
}

// Pending reports how many bytes are currently retained in storage.
func (b *Buffer) Pending() int { return b.stored }

// Reset abandons any stashed bytes without treating them as consumed —
// for a parse that turns out not to apply at all (e.g. a data descriptor
// that was only a false match) and whose bytes must be left for whatever
// comes next to see from the start.
func (b *Buffer) Reset() { b.stored = 0 }
