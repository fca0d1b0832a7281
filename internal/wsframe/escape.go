package wsframe

import (
	"fmt"
	"strings"
)

// EscapeType selects the escaping applied to downstream bytes. Some clients
// read the response as text and can not see NUL bytes (or line breaks).
type EscapeType uint8

const (
	EscapeNone EscapeType = iota
	EscapeZero
	EscapeZeroAndNewline
)

const escapeByte = 0x7F

func (e EscapeType) String() string {
	switch e {
	case EscapeNone:
		return "none"
	case EscapeZero:
		return "zero"
	case EscapeZeroAndNewline:
		return "zero_and_newline"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// ParseEscapeType parses escape type name. Empty string means EscapeNone.
func ParseEscapeType(s string) (EscapeType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return EscapeNone, nil
	case "zero":
		return EscapeZero, nil
	case "zero_and_newline":
		return EscapeZeroAndNewline, nil
	default:
		return EscapeNone, fmt.Errorf("unknown escape type: %q", s)
	}
}

func (e EscapeType) escaped(b byte) (byte, bool) {
	switch {
	case e == EscapeNone:
		return 0, false
	case b == 0x00:
		return 0x30, true
	case b == escapeByte:
		return escapeByte, true
	case e == EscapeZeroAndNewline && b == '\n':
		return 'n', true
	case e == EscapeZeroAndNewline && b == '\r':
		return 'r', true
	}
	return 0, false
}

// AppendEscaped appends src to dst escaped according to e.
func (e EscapeType) AppendEscaped(dst, src []byte) []byte {
	if e == EscapeNone {
		return append(dst, src...)
	}
	for _, b := range src {
		if c, ok := e.escaped(b); ok {
			dst = append(dst, escapeByte, c)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// Unescape reverses AppendEscaped.
func (e EscapeType) Unescape(src []byte) ([]byte, error) {
	if e == EscapeNone {
		return src, nil
	}
	dst := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		b := src[i]
		if b != escapeByte {
			dst = append(dst, b)
			continue
		}
		i++
		if i == len(src) {
			return nil, fmt.Errorf("%w: dangling escape", ErrMalformedFrame)
		}
		switch src[i] {
		case 0x30:
			dst = append(dst, 0x00)
		case escapeByte:
			dst = append(dst, escapeByte)
		case 'n':
			dst = append(dst, '\n')
		case 'r':
			dst = append(dst, '\r')
		default:
			return nil, fmt.Errorf("%w: unknown escape %#x", ErrMalformedFrame, src[i])
		}
	}
	return dst, nil
}
