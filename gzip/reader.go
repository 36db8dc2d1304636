package gzip

import (
	"errors"

	"github.com/klauspost/streamunzip/internal/inflate"
	"github.com/klauspost/streamunzip/internal/sib"
)

type phase int

const (
	phaseInit phase = iota
	phaseHeaderParsed
	phaseInflated
	phaseEnd
)

type hdrStage int

const (
	stageFixed hdrStage = iota
	stageExtraLen
	stageExtraBody
	stageName
	stageComment
	stageHCRC
	stageDone
)

// StateKind tags the outcome of a Read call.
type StateKind int

const (
	NeedsInput StateKind = iota
	// NeedsInputOrEof is returned by a Read after End when there isn't
	// yet enough input (possibly none at all) to tell a genuine end of
	// stream from the start of another concatenated member. The caller is
	// the only one who knows whether more bytes are coming.
	NeedsInputOrEof
	HasOutput
	// End is returned once a member's footer has been parsed, and when
	// the bytes following a member don't start another one; Unparsed
	// holds those following bytes. A further Read continues with the
	// next concatenated member.
	End
)

// State is the result of one Read call.
type State struct {
	Kind     StateKind
	Unparsed []byte
	Output   []byte
}

// Reader decodes one or more concatenated GZIP members from a stream of
// arbitrarily-chunked compressed bytes.
type Reader struct {
	phase phase
	hdr   MemberHeader

	hdrStage hdrStage
	fixed    fixedHeader

	fixedBuf    sib.Buffer
	extraLenBuf sib.Buffer
	extraNeed   int
	extraBuf    []byte
	nameAcc     stringAccumulator
	commentAcc  stringAccumulator
	hcrcBuf     sib.Buffer

	inf        *inflate.Inflater
	windowSize int

	footerBuf  sib.Buffer
	lastFooter Footer
}

// NewReader returns a Reader ready to parse the first GZIP member,
// using the default 32 KiB inflate window.
func NewReader() *Reader {
	return NewReaderWithWindowSize(inflate.DefaultWindowSize)
}

// NewReaderWithWindowSize is NewReader with a caller-chosen inflate
// window.
func NewReaderWithWindowSize(windowSize int) *Reader {
	return &Reader{windowSize: windowSize}
}

// Header returns the current member's header, once parsed.
func (r *Reader) Header() (MemberHeader, bool) {
	if r.phase == phaseInit {
		return MemberHeader{}, false
	}
	return r.hdr, true
}

// Filename returns the current member's FNAME field once its header has
// parsed; ("", false) before that, or when the member carries no name.
func (r *Reader) Filename() (string, bool) {
	if r.phase == phaseInit || r.fixed.flags&flagName == 0 {
		return "", false
	}
	return r.hdr.Name, true
}

// Footer returns the trailer of the member that just finished while the
// reader is between members (from End until the next member's header has
// parsed); ok is false at any other time.
func (r *Reader) Footer() (Footer, bool) {
	if r.phase != phaseEnd {
		return Footer{}, false
	}
	return r.lastFooter, true
}

func (s *stringAccumulator) reset() {
	s.out = s.out[:0]
	s.done = false
}

func (r *Reader) resetForNextMember() {
	r.hdr = MemberHeader{}
	r.hdrStage = stageFixed
	r.fixed = fixedHeader{}
	r.extraNeed = 0
	r.extraBuf = nil
	r.nameAcc.reset()
	r.commentAcc.reset()
	r.inf = nil
}

// Read advances the state machine with the next chunk of compressed
// bytes.
func (r *Reader) Read(input []byte) (State, error) {
	cur := input
	for {
		switch r.phase {
		case phaseInit:
			rest, done, err := r.advanceHeader(cur)
			if errors.Is(err, errNotMember) {
				return State{}, ErrInvalidHeader
			}
			if err != nil {
				return State{}, err
			}
			if !done {
				return State{Kind: NeedsInput}, nil
			}
			cur = rest
			r.phase = phaseHeaderParsed
			continue

		case phaseHeaderParsed:
			if r.inf == nil {
				r.inf = inflate.NewWithWindowSize(r.windowSize)
			}
			p, err := r.inf.FeedInput(cur)
			if err != nil {
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
			rest, done, err := r.advanceFooter(cur)
			if err != nil {
				return State{}, err
			}
			if !done {
				return State{Kind: NeedsInput}, nil
			}
			r.phase = phaseEnd
			return State{Kind: End, Unparsed: rest}, nil

		case phaseEnd:
			if len(cur) == 0 {
				return State{Kind: NeedsInputOrEof}, nil
			}
			// Reset only once per member boundary, so a next-member header
			// split across calls resumes where it left off.
			if r.hdrStage == stageDone {
				r.resetForNextMember()
			}
			rest, done, err := r.advanceHeader(cur)
			if errors.Is(err, errNotMember) {
				// Not a new member: the bytes after the footer don't start
				// with the GZIP magic (e.g. trailing padding). This isn't
				// our call to make fatal; hand them back.
				return State{Kind: End, Unparsed: cur}, nil
			}
			if err != nil {
				return State{}, err
			}
			if !done {
				return State{Kind: NeedsInputOrEof}, nil
			}
			cur = rest
			r.phase = phaseHeaderParsed
			continue
		}
	}
}

// advanceHeader drives the member header's fixed prefix and its
// variable-length sections (extra, name, comment, header CRC) in turn,
// per the flags the fixed prefix declared.
func (r *Reader) advanceHeader(cur []byte) (rest []byte, done bool, err error) {
	for {
		switch r.hdrStage {
		case stageFixed:
			view, orig := r.fixedBuf.Begin(cur)
			_, fh, perr := parseMemberHeaderFixed(view.Bytes)
			switch {
			case errors.Is(perr, errNeedMore):
				if !view.Stitched {
					r.fixedBuf.Extend(view.Bytes)
				}
				return nil, false, nil
			case perr != nil:
				return nil, false, perr
			}
			cur = r.fixedBuf.Consume(memberHeaderFixedLen, orig, cur)
			r.fixed = fh
			r.hdr.Text = fh.flags&flagText != 0
			r.hdr.MTime = fh.mtime
			r.hdr.OS = fh.os
			r.hdrStage = nextStageAfter(fh.flags, stageFixed)
			continue

		case stageExtraLen:
			view, orig := r.extraLenBuf.Begin(cur)
			_, n, perr := parseExtraLen(view.Bytes)
			if errors.Is(perr, errNeedMore) {
				if !view.Stitched {
					r.extraLenBuf.Extend(view.Bytes)
				}
				return nil, false, nil
			}
			if perr != nil {
				return nil, false, perr
			}
			cur = r.extraLenBuf.Consume(2, orig, cur)
			r.extraNeed = n
			r.extraBuf = make([]byte, 0, n)
			r.hdrStage = stageExtraBody
			continue

		case stageExtraBody:
			remaining := r.extraNeed - len(r.extraBuf)
			if remaining > 0 {
				n := len(cur)
				if n > remaining {
					n = remaining
				}
				r.extraBuf = append(r.extraBuf, cur[:n]...)
				cur = cur[n:]
				if len(r.extraBuf) < r.extraNeed {
					return nil, false, nil
				}
			}
			r.hdr.Extra = r.extraBuf
			r.hdrStage = nextStageAfter(r.fixed.flags, stageExtraBody)
			continue

		case stageName:
			rest, ok := r.nameAcc.feed(cur)
			if !ok {
				return nil, false, nil
			}
			cur = rest
			r.hdr.Name = r.nameAcc.String()
			r.hdrStage = nextStageAfter(r.fixed.flags, stageName)
			continue

		case stageComment:
			rest, ok := r.commentAcc.feed(cur)
			if !ok {
				return nil, false, nil
			}
			cur = rest
			r.hdr.Comment = r.commentAcc.String()
			r.hdrStage = nextStageAfter(r.fixed.flags, stageComment)
			continue

		case stageHCRC:
			view, orig := r.hcrcBuf.Begin(cur)
			_, _, perr := parseHCRC(view.Bytes)
			if errors.Is(perr, errNeedMore) {
				if !view.Stitched {
					r.hcrcBuf.Extend(view.Bytes)
				}
				return nil, false, nil
			}
			if perr != nil {
				return nil, false, perr
			}
			cur = r.hcrcBuf.Consume(2, orig, cur)
			r.hdrStage = stageDone
			continue

		case stageDone:
			return cur, true, nil
		}
	}
}

// nextStageAfter returns the next header stage to run given which
// sections the flags byte declared present, skipping any that weren't,
// resuming the flagExtra/flagName/flagComment/flagHCRC sequence right
// after whichever stage just finished (from).
func nextStageAfter(flags byte, from hdrStage) hdrStage {
	checks := []struct {
		stage hdrStage
		bit   byte
		after hdrStage
	}{
		{stageExtraLen, flagExtra, stageFixed},
		{stageName, flagName, stageExtraBody},
		{stageComment, flagComment, stageName},
		{stageHCRC, flagHCRC, stageComment},
	}
	start := 0
	for i, c := range checks {
		if c.after == from {
			start = i
			break
		}
	}
	for _, c := range checks[start:] {
		if flags&c.bit != 0 {
			return c.stage
		}
	}
	return stageDone
}

// advanceFooter parses the 8-byte CRC32+ISIZE trailer. Per spec
// Non-goals, its values aren't cross-checked against the decompressed
// bytes — only accumulated for callers that want to inspect them.
func (r *Reader) advanceFooter(cur []byte) (rest []byte, done bool, err error) {
	view, orig := r.footerBuf.Begin(cur)
	_, f, perr := parseFooter(view.Bytes)
	if errors.Is(perr, errNeedMore) {
		if !view.Stitched {
			r.footerBuf.Extend(view.Bytes)
		}
		return nil, false, nil
	}
	if perr != nil {
		return nil, false, perr
	}
	r.lastFooter = f
	rest = r.footerBuf.Consume(footerLen, orig, cur)
	return rest, true, nil
}
