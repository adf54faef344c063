package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"ely.by/changeskin/internal/db"
)

// Error is returned for any malformed message. Nothing decoded from such message must be applied
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "protocol violation: " + e.Reason
}

func violation(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

type writer struct {
	buf []byte
	err error
}

// writeString writes the uint16 big-endian length in bytes followed by the UTF-8 bytes
func (w *writer) writeString(value string) {
	if w.err != nil {
		return
	}

	if len(value) > math.MaxUint16 {
		w.err = fmt.Errorf("the string of %d bytes doesn't fit into the frame", len(value))
		return
	}

	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(value)))
	w.buf = append(w.buf, value...)
}

func (w *writer) writeSkin(skin *db.Record) {
	if skin == nil {
		if w.err == nil {
			w.err = errors.New("the message requires a skin")
		}

		return
	}

	w.writeString(skin.EncodedValue())
	w.writeString(skin.Signature())
}

func (w *writer) writeInt(value int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(value))
}

func (w *writer) writeBool(value bool) {
	if value {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) readString(field string) (string, error) {
	if r.remaining() < 2 {
		return "", violation("unexpected end of the message while reading the %s length", field)
	}

	length := int(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	if r.remaining() < length {
		return "", violation("the %s declares %d bytes, but only %d left", field, length, r.remaining())
	}

	value := r.buf[r.pos : r.pos+length]
	r.pos += length
	if !utf8.Valid(value) {
		return "", violation("the %s is not a valid UTF-8 string", field)
	}

	return string(value), nil
}

func (r *reader) readInt(field string) (int32, error) {
	if r.remaining() < 4 {
		return 0, violation("unexpected end of the message while reading the %s", field)
	}

	value := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4

	return value, nil
}

func (r *reader) readBool(field string) (bool, error) {
	if r.remaining() < 1 {
		return false, violation("unexpected end of the message while reading the %s", field)
	}

	b := r.buf[r.pos]
	r.pos++
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}

	return false, violation("invalid boolean value %d for the %s", b, field)
}

func (r *reader) expectEnd() error {
	if r.remaining() != 0 {
		return violation("%d unexpected trailing bytes", r.remaining())
	}

	return nil
}
