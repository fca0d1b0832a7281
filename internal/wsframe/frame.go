// Package wsframe contains the framing used by emulated WebSocket sessions on
// top of HTTP request and response bodies.
package wsframe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformedFrame returned when frame can not be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFrameTooLarge returned when data frame payload exceeds decoder limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Type of frame.
type Type uint8

const (
	TypeData    Type = 0x80
	TypePing    Type = 0x89
	TypePong    Type = 0x8A
	TypeCommand Type = 0x01
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "data"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypeCommand:
		return "command"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(t))
	}
}

// Command carried by command frame.
type Command string

const (
	CommandNoop      Command = "00"
	CommandReconnect Command = "01"
	CommandClose     Command = "02"
)

const commandTerminator = 0xFF

// Frame is a single decoded frame.
type Frame struct {
	Type    Type
	Payload []byte
	Command Command
}

// Data returns data frame with payload.
func Data(payload []byte) Frame {
	return Frame{Type: TypeData, Payload: payload}
}

var (
	Ping      = Frame{Type: TypePing}
	Pong      = Frame{Type: TypePong}
	Reconnect = Frame{Type: TypeCommand, Command: CommandReconnect}
	Close     = Frame{Type: TypeCommand, Command: CommandClose}
	Noop      = Frame{Type: TypeCommand, Command: CommandNoop}
)

// Append appends encoded frame to dst.
func Append(dst []byte, f Frame) []byte {
	switch f.Type {
	case TypeData:
		dst = append(dst, byte(TypeData))
		dst = appendLength(dst, len(f.Payload))
		return append(dst, f.Payload...)
	case TypePing, TypePong:
		return append(dst, byte(f.Type), 0x00)
	case TypeCommand:
		dst = append(dst, byte(TypeCommand))
		dst = append(dst, string(f.Command)...)
		return append(dst, commandTerminator)
	default:
		panic("wsframe: unknown frame type " + f.Type.String())
	}
}

// Encode returns encoded frame.
func Encode(f Frame) []byte {
	return Append(nil, f)
}

// appendLength writes n as big-endian base-128 number, every byte except the
// last one has high bit set.
func appendLength(dst []byte, n int) []byte {
	var buf [10]byte
	i := len(buf) - 1
	buf[i] = byte(n & 0x7F)
	n >>= 7
	for n > 0 {
		i--
		buf[i] = byte(n&0x7F) | 0x80
		n >>= 7
	}
	return append(dst, buf[i:]...)
}

const defaultMaxPayloadSize = 65536

// Decoder reads frames from a stream.
type Decoder struct {
	r              *bufio.Reader
	maxPayloadSize int
}

// NewDecoder creates Decoder. Non-positive maxPayloadSize means 64KB.
func NewDecoder(r io.Reader, maxPayloadSize int) *Decoder {
	if maxPayloadSize <= 0 {
		maxPayloadSize = defaultMaxPayloadSize
	}
	return &Decoder{r: bufio.NewReader(r), maxPayloadSize: maxPayloadSize}
}

// Decode reads next frame. Returns io.EOF on clean end of stream.
func (d *Decoder) Decode() (Frame, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return Frame{}, err
	}
	switch Type(b) {
	case TypeData:
		n, err := d.readLength()
		if err != nil {
			return Frame{}, err
		}
		if n > d.maxPayloadSize {
			return Frame{}, ErrFrameTooLarge
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(d.r, payload); err != nil {
			return Frame{}, unexpected(err)
		}
		return Data(payload), nil
	case TypePing, TypePong:
		z, err := d.r.ReadByte()
		if err != nil {
			return Frame{}, unexpected(err)
		}
		if z != 0x00 {
			return Frame{}, fmt.Errorf("%w: non-empty control frame", ErrMalformedFrame)
		}
		return Frame{Type: Type(b)}, nil
	case TypeCommand:
		var cmd [3]byte
		if _, err := io.ReadFull(d.r, cmd[:]); err != nil {
			return Frame{}, unexpected(err)
		}
		if cmd[2] != commandTerminator {
			return Frame{}, fmt.Errorf("%w: unterminated command", ErrMalformedFrame)
		}
		return Frame{Type: TypeCommand, Command: Command(cmd[:2])}, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown frame type %#x", ErrMalformedFrame, b)
	}
}

func (d *Decoder) readLength() (int, error) {
	n := 0
	for i := 0; i < 5; i++ {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, unexpected(err)
		}
		n = n<<7 | int(b&0x7F)
		if b&0x80 == 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: length overflow", ErrMalformedFrame)
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
