// Package gzip implements the GZIP member streaming state machine: a
// reader that decodes one or more concatenated GZIP members, producing
// decompressed bytes incrementally as compressed input arrives in
// arbitrary chunks.
//
// Header parsing follows the same pure, restartable contract as the zip
// package: parseMemberHeaderFixed and parseFooter either return the
// parsed value and the unconsumed tail, or errNeedMore (call again with
// more bytes) or a fatal error. The variable-length name/comment fields
// are collected separately by stringAccumulator once the fixed portion
// has told the caller whether they're present at all.
package gzip

import (
	"encoding/binary"
	"errors"
)

var (
	// errNeedMore signals a parser needs more bytes; never user-visible.
	errNeedMore = errors.New("gzip: need more bytes")
	// errNotMember signals a signature mismatch against the gzip magic,
	// used by the reader to tell "no more members" from "corrupt data".
	errNotMember = errors.New("gzip: not a gzip member")

	ErrInvalidHeader       = errors.New("gzip: invalid member header")
	ErrUnsupportedMethod   = errors.New("gzip: unsupported compression method")
	ErrHeaderChecksum      = errors.New("gzip: header checksum mismatch")
	ErrInvalidFooter       = errors.New("gzip: invalid footer")
)

const (
	id1 = 0x1f
	id2 = 0x8b

	methodDeflate = 8
)

const (
	flagText    = 1 << 0
	flagHCRC    = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4

	// flagReservedMask covers bits 5-7, required to be zero.
	flagReservedMask = 1<<5 | 1<<6 | 1<<7
)

// memberHeaderFixedLen is ID1, ID2, CM, FLG, MTIME(4), XFL, OS.
const memberHeaderFixedLen = 10

// footerLen is CRC32(4) + ISIZE(4).
const footerLen = 8

// MemberHeader is the parsed fixed portion of one GZIP member's header,
// plus whatever variable fields its flags declared present.
type MemberHeader struct {
	Text    bool
	MTime   uint32
	OS      byte
	Extra   []byte
	Name    string
	Comment string
}

// fixedHeader is the intermediate result of the fixed 10-byte prefix,
// before the caller knows how to drive the variable sections.
type fixedHeader struct {
	flags byte
	mtime uint32
	os    byte
}

// parseMemberHeaderFixed parses the 10-byte fixed prefix of a GZIP
// member header.
func parseMemberHeaderFixed(b []byte) (rest []byte, h fixedHeader, err error) {
	if len(b) < 2 {
		return nil, fixedHeader{}, errNeedMore
	}
	if b[0] != id1 || b[1] != id2 {
		return nil, fixedHeader{}, errNotMember
	}
	if len(b) < memberHeaderFixedLen {
		return nil, fixedHeader{}, errNeedMore
	}
	if b[2] != methodDeflate {
		return nil, fixedHeader{}, ErrUnsupportedMethod
	}
	if b[3]&flagReservedMask != 0 {
		return nil, fixedHeader{}, ErrInvalidHeader
	}
	h = fixedHeader{
		flags: b[3],
		mtime: binary.LittleEndian.Uint32(b[4:8]),
		os:    b[9],
	}
	return b[memberHeaderFixedLen:], h, nil
}

// parseExtraLen parses FEXTRA's 2-byte length prefix, present only when
// flagExtra is set.
func parseExtraLen(b []byte) (rest []byte, n int, err error) {
	if len(b) < 2 {
		return nil, 0, errNeedMore
	}
	n = int(binary.LittleEndian.Uint16(b[0:2]))
	return b[2:], n, nil
}

// parseHCRC parses FHCRC's 2-byte header CRC16, present only when
// flagHCRC is set. The reader parses and discards it; it is not checked
// against the header bytes.
func parseHCRC(b []byte) (rest []byte, crc16 uint16, err error) {
	if len(b) < 2 {
		return nil, 0, errNeedMore
	}
	return b[2:], binary.LittleEndian.Uint16(b[0:2]), nil
}

// Footer is the 8-byte trailer following a member's compressed body.
type Footer struct {
	CRC32 uint32
	ISIZE uint32
}

// parseFooter parses the fixed 8-byte footer.
func parseFooter(b []byte) (rest []byte, f Footer, err error) {
	if len(b) < footerLen {
		return nil, Footer{}, errNeedMore
	}
	f = Footer{
		CRC32: binary.LittleEndian.Uint32(b[0:4]),
		ISIZE: binary.LittleEndian.Uint32(b[4:8]),
	}
	return b[footerLen:], f, nil
}

// stringAccumulator collects a NUL-terminated Latin-1 string across
// calls, converting each byte to its UTF-8 equivalent as it arrives,
// since Latin-1's code points above 0x7f need multi-byte UTF-8 encoding
// one rune at a time rather than a bulk conversion.
type stringAccumulator struct {
	out  []byte
	done bool
}

// feed consumes from in up to and including a NUL terminator. rest is
// the tail after the terminator; ok is true once the terminator was
// found (possibly on an earlier call).
func (s *stringAccumulator) feed(in []byte) (rest []byte, ok bool) {
	for i, c := range in {
		if c == 0 {
			s.done = true
			return in[i+1:], true
		}
		if c < 0x80 {
			s.out = append(s.out, c)
		} else {
			// Latin-1 code points 0x80-0xff map to U+0080-U+00FF, which
			// in UTF-8 is always a 2-byte sequence: 110xxxxx 10xxxxxx.
			s.out = append(s.out, 0xC0|(c>>6), 0x80|(c&0x3F))
		}
	}
	return nil, false
}

func (s *stringAccumulator) String() string { return string(s.out) }
