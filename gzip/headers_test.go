package gzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func buildMemberHeader(flags byte, extra []byte, name, comment string, hcrc bool) []byte {
	var buf bytes.Buffer
	buf.WriteByte(id1)
	buf.WriteByte(id2)
	buf.WriteByte(methodDeflate)
	buf.WriteByte(flags)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // mtime
	buf.WriteByte(0)                                   // xfl
	buf.WriteByte(3)                                   // os: unix
	if flags&flagExtra != 0 {
		binary.Write(&buf, binary.LittleEndian, uint16(len(extra)))
		buf.Write(extra)
	}
	if flags&flagName != 0 {
		buf.WriteString(name)
		buf.WriteByte(0)
	}
	if flags&flagComment != 0 {
		buf.WriteString(comment)
		buf.WriteByte(0)
	}
	if hcrc {
		binary.Write(&buf, binary.LittleEndian, uint16(0xBEEF))
	}
	return buf.Bytes()
}

func TestParseMemberHeaderFixedMinimal(t *testing.T) {
	raw := buildMemberHeader(0, nil, "", "", false)
	rest, fh, err := parseMemberHeaderFixed(raw)
	if err != nil {
		t.Fatalf("parseMemberHeaderFixed: %v", err)
	}
	if fh.os != 3 {
		t.Errorf("os = %d, want 3", fh.os)
	}
	if len(rest) != 0 {
		t.Errorf("expected no trailing bytes, got %d", len(rest))
	}
}

func TestParseMemberHeaderFixedBadMagic(t *testing.T) {
	raw := buildMemberHeader(0, nil, "", "", false)
	raw[0] = 0
	_, _, err := parseMemberHeaderFixed(raw)
	if !errors.Is(err, errNotMember) {
		t.Fatalf("got %v, want errNotMember", err)
	}
}

func TestParseMemberHeaderFixedNeedsMore(t *testing.T) {
	raw := buildMemberHeader(0, nil, "", "", false)
	_, _, err := parseMemberHeaderFixed(raw[:5])
	if !errors.Is(err, errNeedMore) {
		t.Fatalf("got %v, want errNeedMore", err)
	}
}

func TestParseMemberHeaderFixedUnsupportedMethod(t *testing.T) {
	raw := buildMemberHeader(0, nil, "", "", false)
	raw[2] = 0
	_, _, err := parseMemberHeaderFixed(raw)
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("got %v, want ErrUnsupportedMethod", err)
	}
}

func TestStringAccumulatorLatin1(t *testing.T) {
	var acc stringAccumulator
	in := []byte{'h', 'i', 0xE9, 0} // "hi\xe9" then NUL
	rest, ok := acc.feed(in)
	if !ok {
		t.Fatalf("expected terminator found")
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes")
	}
	if acc.String() != "hié" {
		t.Fatalf("got %q, want %q", acc.String(), "hié")
	}
}

func TestStringAccumulatorAcrossCalls(t *testing.T) {
	var acc stringAccumulator
	if _, ok := acc.feed([]byte("par")); ok {
		t.Fatalf("should not be done yet")
	}
	if _, ok := acc.feed([]byte("tia")); ok {
		t.Fatalf("should not be done yet")
	}
	rest, ok := acc.feed([]byte{0, 'X', 'Y'})
	if !ok {
		t.Fatalf("expected done")
	}
	if string(rest) != "XY" {
		t.Fatalf("got rest %q, want %q", rest, "XY")
	}
	if acc.String() != "partia" {
		t.Fatalf("got %q, want %q", acc.String(), "partia")
	}
}

func TestParseFooter(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0x12345678))
	binary.Write(&buf, binary.LittleEndian, uint32(99))
	rest, f, err := parseFooter(buf.Bytes())
	if err != nil {
		t.Fatalf("parseFooter: %v", err)
	}
	if f.CRC32 != 0x12345678 || f.ISIZE != 99 {
		t.Fatalf("got %+v", f)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes")
	}
}
