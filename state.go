package streamunzip

import "github.com/klauspost/streamunzip/zip"

// StateKind tags the outcome of a Read call on an AutoReader.
type StateKind int

const (
	// NeedsInput means more compressed bytes are required before
	// progress can continue.
	NeedsInput StateKind = iota
	// NeedsInputOrEof means a GZIP member has finished (End was already
	// returned) and the stream may or may not continue with another
	// concatenated member; only the caller knows whether more bytes are
	// actually coming.
	NeedsInputOrEof
	// HasOutput carries one chunk of decompressed bytes.
	HasOutput
	// NextFile means a ZIP entry finished and the next one is ready to
	// read from.
	NextFile
	// EndOfFile means a ZIP stream's local file entries are exhausted
	// (the central directory was reached).
	EndOfFile
	// End means a GZIP member's footer was parsed (or the bytes after a
	// member don't start another one); Unparsed holds the bytes that
	// followed. A further Read continues with the next member, if any.
	End
)

// State is the result of one AutoReader.Read call.
type State struct {
	Kind     StateKind
	Unparsed []byte
	Output   []byte
	// ZipNext is set on NextFile: the Reader for the next ZIP entry.
	ZipNext *zip.Reader
}
