package zip

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/streamunzip/internal/inflate"
	"github.com/klauspost/streamunzip/internal/sib"
)

// ErrExpectedLocalOrCentralHeader is returned when, after a file's data
// descriptor, the following bytes are neither a local file header nor a
// central directory entry.
var ErrExpectedLocalOrCentralHeader = errors.New("zip: expected local file header or central directory entry")

// ErrReadAfterTerminal is returned by Read when called again after a
// reader has already failed with an error — a contract violation by the
// caller. A reader that reached End keeps returning EndOfFile instead.
var ErrReadAfterTerminal = errors.New("zip: read called after terminal state")

type phase int

const (
	phaseInit phase = iota
	phaseHeaderParsed
	phaseInflated
	phaseDescriptorParsed
	phaseEnd
	phaseError
)

// StateKind tags the outcome of a Read call.
type StateKind int

const (
	NeedsInput StateKind = iota
	HasOutput
	NextFile
	EndOfFile
)

// State is the result of one Read call.
type State struct {
	Kind     StateKind
	Unparsed []byte
	Output   []byte
	Next     *Reader
}

// Reader advances through a single ZIP local file entry. Construct one
// with NewReader for the first entry of a stream; subsequent entries are
// handed out via State.Next (see Read).
type Reader struct {
	phase phase
	hdr   LocalFileHeader

	fixedParsed bool
	fixedBuf    sib.Buffer
	varBuf      rawAccumulator
	fnameSplit  int // varBuf.buf[:fnameSplit] is the filename, the rest is the extra field area

	inf        *inflate.Inflater
	windowSize int

	descBuf sib.Buffer
	sig     sigPeek

	err error
}

// NewReader returns a Reader ready to parse the first local file header
// from a ZIP stream, using the default 32 KiB inflate window.
func NewReader() *Reader {
	return NewReaderWithWindowSize(inflate.DefaultWindowSize)
}

// NewReaderWithWindowSize is NewReader with a caller-chosen inflate
// window (rounded up to the DEFLATE minimum of 32 KiB).
func NewReaderWithWindowSize(windowSize int) *Reader {
	return &Reader{windowSize: windowSize}
}

// Filename returns the current entry's filename, once its header has
// parsed; ("", false) before that.
func (r *Reader) Filename() (string, bool) {
	if r.phase == phaseInit {
		return "", false
	}
	return string(r.hdr.Filename), true
}

// Header returns the current entry's parsed local file header, once
// available.
func (r *Reader) Header() (LocalFileHeader, bool) {
	if r.phase == phaseInit {
		return LocalFileHeader{}, false
	}
	return r.hdr, true
}

// rawAccumulator collects exactly `need` bytes across calls — used for
// filename+extra-field payloads once their combined declared length is
// known from the fixed header.
type rawAccumulator struct {
	need int
	buf  []byte
}

func (a *rawAccumulator) start(need int) {
	a.need = need
	a.buf = make([]byte, 0, need)
}

func (a *rawAccumulator) feed(in []byte) (rest []byte, done bool) {
	remaining := a.need - len(a.buf)
	if remaining <= 0 {
		return in, true
	}
	n := len(in)
	if n > remaining {
		n = remaining
	}
	a.buf = append(a.buf, in[:n]...)
	return in[n:], len(a.buf) == a.need
}

// sigPeek accumulates up to 4 bytes across calls to look ahead at a
// signature without necessarily consuming it from the eventual stream
// position — used for empty-stream detection and for the next-entry /
// central-directory dispatch after a data descriptor.
type sigPeek struct {
	buf [4]byte
	n   int
}

// feed reports the 4 signature bytes plus how the caller's input relates
// to them, once enough bytes are available. stitched is true when some
// of the signature bytes came from a previous call (a copy was needed);
// false means sig aliases cur directly (zero-copy fast path) and rest is
// simply cur unchanged (the signature bytes are still at its front).
func (p *sigPeek) feed(cur []byte) (sig []byte, rest []byte, stitched, ok bool) {
	if p.n == 0 {
		if len(cur) < 4 {
			copy(p.buf[:], cur)
			p.n = len(cur)
			return nil, nil, false, false
		}
		return cur[:4], cur, false, true
	}
	need := 4 - p.n
	if len(cur) < need {
		copy(p.buf[p.n:], cur)
		p.n += len(cur)
		return nil, nil, false, false
	}
	copy(p.buf[p.n:], cur[:need])
	p.n = 4
	combined := append([]byte(nil), p.buf[:4]...)
	rest = append(combined, cur[need:]...)
	return combined, rest, true, true
}

func (p *sigPeek) reset() { p.n = 0 }

// Read advances the state machine with the next chunk of compressed
// bytes. Read must not be called again once a reader has reached a
// terminal state.
func (r *Reader) Read(input []byte) (State, error) {
	cur := input
	for {
		switch r.phase {
		case phaseInit:
			rest, done, err := r.advanceHeader(cur)
			if err != nil {
				r.phase = phaseError
				r.err = err
				return State{}, err
			}
			if !done {
				return State{Kind: NeedsInput}, nil
			}
			cur = rest
			r.phase = phaseHeaderParsed
			r.sig.reset()
			continue

		case phaseHeaderParsed:
			if r.inf == nil {
				if r.hdr.CompressionMethod == MethodStored && r.hdr.CompressedSize == 0 {
					// An empty Stored body has nothing to inflate; the
					// descriptor check then confirms the sizes are 0.
					r.phase = phaseInflated
					continue
				}
				if r.hdr.CompressionMethod != MethodDeflated {
					err := fmt.Errorf("%w: method %d", ErrInvalidCompressionMethod, r.hdr.CompressionMethod)
					r.phase = phaseError
					r.err = err
					return State{}, err
				}
				if r.hdr.CompressedSize == 0 && r.hdr.UncompressedSize == 0 && !r.hdr.DeferredSizes {
					sig, rest, _, ok := r.sig.feed(cur)
					if !ok {
						return State{Kind: NeedsInput}, nil
					}
					if binary.LittleEndian.Uint32(sig) == sigLocalFileHeader {
						r.sig.reset()
						r.phase = phaseInflated
						cur = rest
						continue
					}
					r.sig.reset()
					cur = rest
				}
				r.inf = inflate.NewWithWindowSize(r.windowSize)
			}
			p, err := r.inf.FeedInput(cur)
			if err != nil {
				r.phase = phaseError
				r.err = err
				return State{}, err
			}
			switch p.Kind {
			case inflate.HasOutput:
				return State{Kind: HasOutput, Unparsed: p.Unparsed, Output: p.Output}, nil
			case inflate.NeedsInput:
				return State{Kind: NeedsInput}, nil
			case inflate.Stop:
				cur = p.Unparsed
				r.phase = phaseInflated
				continue
			}

		case phaseInflated:
			rest, done, err := r.advanceDescriptor(cur)
			if err != nil {
				r.phase = phaseError
				r.err = err
				return State{}, err
			}
			if !done {
				return State{Kind: NeedsInput}, nil
			}
			cur = rest
			r.phase = phaseDescriptorParsed
			continue

		case phaseDescriptorParsed:
			sig, rest, _, ok := r.sig.feed(cur)
			if !ok {
				return State{Kind: NeedsInput}, nil
			}
			r.sig.reset()
			switch binary.LittleEndian.Uint32(sig) {
			case sigLocalFileHeader:
				next := NewReaderWithWindowSize(r.windowSize)
				leftover, err := next.feedFromPeer(rest)
				if err != nil {
					r.phase = phaseError
					r.err = err
					return State{}, err
				}
				r.phase = phaseEnd
				return State{Kind: NextFile, Next: next, Unparsed: leftover}, nil
			case sigCentralDirEntry, sigCentralDirEnd:
				r.phase = phaseEnd
				return State{Kind: EndOfFile, Unparsed: rest}, nil
			default:
				err := ErrExpectedLocalOrCentralHeader
				r.phase = phaseError
				r.err = err
				return State{}, err
			}

		case phaseEnd:
			return State{Kind: EndOfFile}, nil

		case phaseError:
			return State{}, fmt.Errorf("%w: %v", ErrReadAfterTerminal, r.err)
		}
	}
}

// feedFromPeer lets DescriptorParsed hand a freshly-minted next Reader
// its first bytes immediately, so the caller of the outer Read doesn't
// need to resupply bytes that are already available this call. It drives
// only the header-parsing phase (never inflation) and returns whatever
// of in it didn't consume.
func (r *Reader) feedFromPeer(in []byte) ([]byte, error) {
	rest, done, err := r.advanceHeader(in)
	if err != nil {
		r.phase = phaseError
		r.err = err
		return nil, err
	}
	if done {
		r.phase = phaseHeaderParsed
		r.sig.reset()
	}
	return rest, nil
}

// advanceHeader parses the fixed 30-byte local file header, then
// accumulates its filename+extra-field payload. done is true once the
// full record (including variable-length fields) has parsed.
func (r *Reader) advanceHeader(cur []byte) (rest []byte, done bool, err error) {
	if !r.fixedParsed {
		view, origStored := r.fixedBuf.Begin(cur)
		hdr, fnameLen, extraLen, perr := parseLocalFileHeaderFixed(view.Bytes)
		switch {
		case errors.Is(perr, errNeedMore):
			if !view.Stitched {
				r.fixedBuf.Extend(view.Bytes)
			}
			return nil, false, nil
		case errors.Is(perr, errNotLocalFileHeader):
			return nil, false, ErrInvalidLocalFileHeader
		case perr != nil:
			return nil, false, perr
		}
		rest = r.fixedBuf.Consume(localFileHeaderFixedLen, origStored, cur)
		r.hdr = hdr
		r.fnameSplit = fnameLen
		r.varBuf.start(fnameLen + extraLen)
		r.fixedParsed = true
		cur = rest
	}
	rest, ok := r.varBuf.feed(cur)
	if !ok {
		return nil, false, nil
	}
	r.hdr.Filename = append([]byte(nil), r.varBuf.buf[:r.fnameSplit]...)
	r.hdr.ExtraFields = parseExtraFields(r.varBuf.buf[r.fnameSplit:])
	return rest, true, nil
}

func parseExtraFields(b []byte) []ExtraField {
	var fields []ExtraField
	for len(b) > 0 {
		rest, field, err := parseExtraFieldEntry(b)
		if err != nil {
			break
		}
		fields = append(fields, field)
		b = rest
	}
	return fields
}

// advanceDescriptor parses the data descriptor following an entry's
// compressed body. A tagged descriptor, or one following a header that
// deferred its sizes, is trusted outright and a size mismatch there is
// fatal corruption. Otherwise the header already knew its sizes: an
// untagged descriptor whose sizes don't match what was actually inflated
// is treated as not a descriptor at all, and its bytes are left
// unconsumed for whatever comes next to reinterpret from the start.
func (r *Reader) advanceDescriptor(cur []byte) (rest []byte, done bool, err error) {
	view, origStored := r.descBuf.Begin(cur)
	var desc DataDescriptor
	var perr error
	var consumedRest []byte
	if r.hdr.IsZip64 {
		consumedRest, desc, perr = parseDataDescriptor64(view.Bytes)
	} else {
		consumedRest, desc, perr = parseDataDescriptor32(view.Bytes)
	}
	if errors.Is(perr, errNeedMore) {
		if !view.Stitched {
			r.descBuf.Extend(view.Bytes)
		}
		return nil, false, nil
	}
	if perr != nil {
		return nil, false, perr
	}
	consumedN := len(view.Bytes) - len(consumedRest)

	// r.inf is nil only via the empty-stream fast path (csize=0, usize=0
	// declared in the header, inflation skipped entirely), where the
	// actual sizes are trivially 0 rather than anything the inflater
	// tracked.
	var actualCsize, actualUsize uint64
	if r.inf != nil {
		actualCsize = uint64(r.inf.CompressedSize())
		actualUsize = uint64(r.inf.UncompressedSize())
		if !r.hdr.IsZip64 {
			actualCsize &= 0xFFFFFFFF
			actualUsize &= 0xFFFFFFFF
		}
	}

	sizesMismatch := desc.CompressedSize != actualCsize || desc.UncompressedSize != actualUsize
	if sizesMismatch {
		// A descriptor carrying its own signature, or following a header
		// that deferred its sizes, is a real descriptor: a size mismatch
		// there is corruption, not a false match.
		if desc.TagPresent || r.hdr.DeferredSizes {
			return nil, false, ErrInvalidDataDescriptor
		}
		// Otherwise the header already knew its sizes and this untagged
		// descriptor's sizes disagree with what was actually inflated: not
		// a real descriptor at all. Don't advance past these bytes. If
		// some of them came from stashed storage (a split exactly across
		// the header-lookback boundary), reassemble the full unconsumed
		// prefix rather than just cur, or the stashed bytes would be
		// silently dropped.
		full := cur
		if view.Stitched {
			stashedFromCur := len(view.Bytes) - origStored
			full = append(append([]byte(nil), view.Bytes...), cur[stashedFromCur:]...)
		}
		r.descBuf.Reset()
		return full, true, nil
	}

	rest = r.descBuf.Consume(consumedN, origStored, cur)
	return rest, true, nil
}
