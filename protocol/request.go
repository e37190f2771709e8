package protocol

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrRequestNotStructured = errors.New("Line request is not a JSON object with a string line field")

type Marshaler interface {
	Marshal() ([]byte, error)
}

type Unmarshaler interface {
	Unmarshal(data []byte) error
}

type Marshalable interface {
	Marshaler
	Unmarshaler
}

// LineRequest is one line of text the client wants hashed.
type LineRequest struct {
	Line string

	// LBytes is the payload size the client declared for this line. It is
	// only sent, and echoed back, when HasLBytes is set.
	LBytes    int
	HasLBytes bool
}

// NewLineRequest returns a request that will be sent as a bare line.
func NewLineRequest(line string) LineRequest {
	return LineRequest{Line: strings.TrimSpace(line)}
}

// NewSizedLineRequest returns a request that will be sent as a JSON object
// carrying lBytes.
func NewSizedLineRequest(line string, lBytes int) LineRequest {
	return LineRequest{
		Line:      strings.TrimSpace(line),
		LBytes:    lBytes,
		HasLBytes: true,
	}
}

// Marshal encodes the request as it is written on the wire, without the
// trailing line terminator.
func (l *LineRequest) Marshal() ([]byte, error) {
	if !l.HasLBytes {
		return []byte(l.Line), nil
	}

	b, err := sjson.SetBytes([]byte("{}"), "line", l.Line)
	if err != nil {
		return nil, err
	}

	return sjson.SetBytes(b, "num_L_bytes", l.LBytes)
}

// Unmarshal decodes a line received from the wire. Anything that is not a JSON
// object with a string "line" field is treated as a raw line.
func (l *LineRequest) Unmarshal(data []byte) error {
	if err := l.unmarshalStructured(data); err == nil {
		return nil
	}

	*l = NewLineRequest(string(data))
	return nil
}

func (l *LineRequest) unmarshalStructured(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return ErrRequestNotStructured
	}

	fields := gjson.GetMany(trimmed, "line", "num_L_bytes")
	if fields[0].Type != gjson.String {
		return ErrRequestNotStructured
	}

	*l = LineRequest{Line: strings.TrimSpace(fields[0].String())}

	if fields[1].Exists() {
		l.LBytes = int(fields[1].Int())
		l.HasLBytes = true
	}

	return nil
}

var _ Marshalable = (*LineRequest)(nil)
