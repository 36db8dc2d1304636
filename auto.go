// Package streamunzip decompresses ZIP and GZIP streams incrementally,
// accepting compressed bytes in arbitrarily-sized chunks and producing
// decompressed bytes without ever buffering a whole file or archive in
// memory. AutoReader is the single entry point for callers who don't
// know up front which of the two formats they're looking at; the zip
// and gzip subpackages expose their own readers directly for callers
// who do.
package streamunzip

import (
	"errors"

	"github.com/klauspost/streamunzip/gzip"
	"github.com/klauspost/streamunzip/internal/inflate"
	"github.com/klauspost/streamunzip/zip"
)

type detectedKind int

const (
	kindUndetected detectedKind = iota
	kindZip
	kindGzip
)

// magicPeek accumulates up to 4 bytes across calls to identify a
// stream's format before any reader has been constructed for it.
type magicPeek struct {
	buf [4]byte
	n   int
}

func (p *magicPeek) feed(cur []byte) (magic []byte, rest []byte, ok bool) {
	if p.n == 0 {
		if len(cur) < 4 {
			copy(p.buf[:], cur)
			p.n = len(cur)
			return nil, nil, false
		}
		return cur[:4], cur, true
	}
	need := 4 - p.n
	if len(cur) < need {
		copy(p.buf[p.n:], cur)
		p.n += len(cur)
		return nil, nil, false
	}
	copy(p.buf[p.n:], cur[:need])
	combined := append([]byte(nil), p.buf[:4]...)
	rest = append(combined, cur[need:]...)
	return combined, rest, true
}

// AutoReader dispatches to the ZIP or GZIP state machine based on a
// stream's first 4 bytes, then forwards every subsequent Read call to
// whichever one it picked.
type AutoReader struct {
	kind       detectedKind
	peek       magicPeek
	windowSize int

	zipR  *zip.Reader
	gzipR *gzip.Reader
}

// NewAutoReader returns an AutoReader using the default 32 KiB inflate
// window.
func NewAutoReader() *AutoReader {
	return NewAutoReaderWithWindowSize(inflate.DefaultWindowSize)
}

// NewAutoReaderWithWindowSize is NewAutoReader with a caller-chosen
// inflate window, forwarded to whichever format-specific reader gets
// constructed once the format is known.
func NewAutoReaderWithWindowSize(windowSize int) *AutoReader {
	return &AutoReader{windowSize: windowSize}
}

// Read advances the underlying reader with the next chunk of input,
// first detecting the stream's format if that hasn't happened yet.
func (a *AutoReader) Read(input []byte) (State, error) {
	cur := input
	if a.kind == kindUndetected {
		magic, rest, ok := a.peek.feed(cur)
		if !ok {
			return State{Kind: NeedsInput}, nil
		}
		switch {
		case magic[0] == 0x50 && magic[1] == 0x4B && magic[2] == 0x03 && magic[3] == 0x04:
			a.kind = kindZip
			a.zipR = zip.NewReaderWithWindowSize(a.windowSize)
		case magic[0] == 0x1f && magic[1] == 0x8b:
			a.kind = kindGzip
			a.gzipR = gzip.NewReaderWithWindowSize(a.windowSize)
		default:
			return State{}, ErrUnknownFileFormat
		}
		cur = rest
	}

	switch a.kind {
	case kindZip:
		st, err := a.zipR.Read(cur)
		if err != nil {
			return State{}, err
		}
		out := State{Unparsed: st.Unparsed, Output: st.Output}
		switch st.Kind {
		case zip.NeedsInput:
			out.Kind = NeedsInput
		case zip.HasOutput:
			out.Kind = HasOutput
		case zip.NextFile:
			out.Kind = NextFile
			out.ZipNext = st.Next
			a.zipR = st.Next
		case zip.EndOfFile:
			out.Kind = EndOfFile
		}
		return out, nil

	case kindGzip:
		st, err := a.gzipR.Read(cur)
		if err != nil {
			return State{}, err
		}
		out := State{Unparsed: st.Unparsed, Output: st.Output}
		switch st.Kind {
		case gzip.NeedsInput:
			out.Kind = NeedsInput
		case gzip.NeedsInputOrEof:
			out.Kind = NeedsInputOrEof
		case gzip.HasOutput:
			out.Kind = HasOutput
		case gzip.End:
			out.Kind = End
		}
		return out, nil
	}

	return State{}, errors.New("streamunzip: unreachable: no format detected")
}
