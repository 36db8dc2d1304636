// Package inflate adapts github.com/klauspost/compress/flate's io.Reader
// based decompressor to the push-style contract this module's readers are
// built around: feed it whatever compressed bytes you currently have, and
// it tells you whether it produced output, needs more input, or reached
// the end of the DEFLATE stream.
//
// The adapter relies on a quirk of flate.NewReader's own buffering
// decision: it only wraps its source in a bufio.Reader when that source
// doesn't already implement ReadByte. The feeder type below implements
// both Read and ReadByte directly against whatever slice was just fed in,
// so flate never reads ahead of what feedInput handed it, and the number
// of bytes consumed per call can be tracked exactly.
package inflate

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// DefaultWindowSize is the minimum output window: 32 KiB, the maximum
// DEFLATE back-reference distance.
const DefaultWindowSize = 32 * 1024

// errNeedMoreInput is returned by the feeder, never by FeedInput; it is
// flate's signal to suspend rather than fail.
var errNeedMoreInput = errors.New("inflate: feeder exhausted")

// ErrInvalidStream wraps any flate decoder failure that isn't the
// exhausted-input sentinel or io.EOF. Once returned, the Inflater must not
// be reused.
var ErrInvalidStream = errors.New("inflate: invalid deflate stream")

// feeder is an io.Reader + io.ByteReader shim: it serves bytes only out of
// whatever slice was most recently handed to it, and reports
// errNeedMoreInput the instant that slice runs dry rather than blocking
// or returning io.EOF.
type feeder struct {
	pending  []byte
	consumed int
}

func (f *feeder) ReadByte() (byte, error) {
	if len(f.pending) == 0 {
		return 0, errNeedMoreInput
	}
	b := f.pending[0]
	f.pending = f.pending[1:]
	f.consumed++
	return b, nil
}

func (f *feeder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(f.pending) == 0 {
		return 0, errNeedMoreInput
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	f.consumed += n
	return n, nil
}

// Kind tags the outcome of a FeedInput call.
type Kind int

const (
	// NeedsInput means all of the fed bytes were consumed without
	// producing output; Unparsed is always empty.
	NeedsInput Kind = iota
	// HasOutput means a contiguous decompressed chunk was produced.
	// Output is valid only until the next FeedInput call.
	HasOutput
	// Stop means the DEFLATE stream's final block was reached.
	Stop
)

// Progress is the result of one FeedInput call.
type Progress struct {
	Kind     Kind
	Unparsed []byte
	Output   []byte
}

// Inflater wraps a flate decompressor with a fixed-size ring buffer output
// window and byte counters. It is single-owner: exactly one ZipReader or
// GzipReader drives it at a time.
type Inflater struct {
	window     []byte
	outPos     int
	lastOutPos int
	hadOutput  bool

	compressedSize   int64
	uncompressedSize int64

	feeder *feeder
	fr     io.ReadCloser
}

// New returns an Inflater with the default 32 KiB window.
func New() *Inflater {
	return NewWithWindowSize(DefaultWindowSize)
}

// NewWithWindowSize returns an Inflater whose output window is at least
// size bytes (smaller requests are rounded up to DefaultWindowSize, since
// DEFLATE back-references can reach 32 KiB).
func NewWithWindowSize(size int) *Inflater {
	if size < DefaultWindowSize {
		size = DefaultWindowSize
	}
	f := &feeder{}
	return &Inflater{
		window: make([]byte, size),
		feeder: f,
		fr:     flate.NewReader(f),
	}
}

// CompressedSize reports the total DEFLATE-body bytes consumed so far.
func (inf *Inflater) CompressedSize() int64 { return inf.compressedSize }

// UncompressedSize reports the total bytes produced so far.
func (inf *Inflater) UncompressedSize() int64 { return inf.uncompressedSize }

// FeedInput advances decompression with newly available compressed bytes.
// Output is written into the window at the write head; a HasOutput chunk
// is exactly what this call produced and never wraps past the window's
// end (the head restarts at 0 once it reaches the end). The chunk stays
// valid until the next FeedInput call.
func (inf *Inflater) FeedInput(in []byte) (Progress, error) {
	if inf.hadOutput {
		inf.lastOutPos = inf.outPos
		inf.hadOutput = false
	}

	inf.feeder.pending = in
	inf.feeder.consumed = 0

	space := inf.window[inf.outPos:]
	n, err := inf.fr.Read(space)

	inf.compressedSize += int64(inf.feeder.consumed)
	tail := in[inf.feeder.consumed:]

	if n > 0 {
		inf.uncompressedSize += int64(n)
		newOutPos := inf.outPos + n
		output := inf.window[inf.lastOutPos:newOutPos]
		inf.outPos = newOutPos
		if inf.outPos == len(inf.window) {
			inf.outPos = 0
		}
		inf.hadOutput = true
		return Progress{Kind: HasOutput, Unparsed: tail, Output: output}, nil
	}

	switch {
	case err == nil, errors.Is(err, errNeedMoreInput):
		return Progress{Kind: NeedsInput, Unparsed: tail}, nil
	case errors.Is(err, io.EOF):
		return Progress{Kind: Stop, Unparsed: tail}, nil
	default:
		return Progress{}, fmt.Errorf("%w: %v", ErrInvalidStream, err)
	}
}

// InnerIter drives FeedInput in a loop, invoking emit on every HasOutput
// chunk, and returns the first terminal Progress (NeedsInput or Stop).
func (inf *Inflater) InnerIter(input []byte, emit func([]byte)) (Progress, error) {
	in := input
	for {
		p, err := inf.FeedInput(in)
		if err != nil {
			return Progress{}, err
		}
		if p.Kind != HasOutput {
			return p, nil
		}
		emit(p.Output)
		in = p.Unparsed
	}
}

// InnerIterErr is the fallible variant of InnerIter: emit may abort the
// loop by returning a non-nil error, which InnerIterErr propagates.
func (inf *Inflater) InnerIterErr(input []byte, emit func([]byte) error) (Progress, error) {
	in := input
	for {
		p, err := inf.FeedInput(in)
		if err != nil {
			return Progress{}, err
		}
		if p.Kind != HasOutput {
			return p, nil
		}
		if err := emit(p.Output); err != nil {
			return Progress{}, err
		}
		in = p.Unparsed
	}
}
