package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxMessageSize bounds a single client message, including its terminator.
const MaxMessageSize = 1024

var (
	ErrInvalidCount      = errors.New("Invalid request count")
	ErrUnknownCommand    = errors.New("Unknown command could not be parsed")
	ErrMessageTooLarge   = errors.New("Message is larger than the maximum message size")
	ErrMalformedResponse = errors.New("Response is malformed")

	PrefixError  = "Error: "
	PrefixType   = "Type: "
	PrefixHash   = "Hash "
	PrefixLBytes = "L Bytes Read: "
	PrefixTotal  = "Total length of all hash responses will be "
)

// CountError is returned when a handshake does not carry a non-negative
// integer. It matches ErrInvalidCount with errors.Is.
type CountError struct {
	Raw string
}

func (e *CountError) Error() string {
	return fmt.Sprintf("invalid request count %q", e.Raw)
}

func (e *CountError) Unwrap() error {
	return ErrInvalidCount
}

// NewReader returns a reader sized so that ReadLine rejects messages longer
// than MaxMessageSize.
func NewReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, MaxMessageSize)
}

// ReadLine reads a single '\n' terminated message and returns it without the
// terminator or an optional trailing '\r'.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	raw, err := r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, ErrMessageTooLarge
		}

		if errors.Is(err, io.EOF) && len(raw) > 0 {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, err
	}

	// ReadSlice's result is only valid until the next read
	line := make([]byte, len(raw)-1)
	copy(line, raw)

	return RemoveTrailingCR(line), nil
}

// ReadCount reads the handshake message.
func ReadCount(r *bufio.Reader) (int, error) {
	line, err := ReadLine(r)
	if err != nil {
		return 0, err
	}

	return ParseCount(string(line))
}

// ParseCount parses a declared request count. Anything other than a
// non-negative decimal integer is a *CountError.
func ParseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, &CountError{Raw: raw}
	}

	return n, nil
}

// ReadLineRequest reads one line request, raw or structured.
func ReadLineRequest(r *bufio.Reader) (req LineRequest, err error) {
	line, err := ReadLine(r)
	if err != nil {
		return req, err
	}

	err = req.Unmarshal(line)
	return req, err
}

// ReadCommand reads a command-mode instruction.
func ReadCommand(r *bufio.Reader) (Command, error) {
	line, err := ReadLine(r)
	if err != nil {
		return "", err
	}

	cmd, ok := ParseCommand(string(line))
	if !ok {
		return "", fmt.Errorf("Failed to parse '%s': %w", string(line), ErrUnknownCommand)
	}

	return cmd, nil
}

// ReadBlock reads lines up to and excluding the empty line that ends a server
// block.
func ReadBlock(r *bufio.Reader) ([]string, error) {
	var lines []string

	for {
		line, err := ReadLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) && len(lines) > 0 {
				return nil, io.ErrUnexpectedEOF
			}

			return nil, err
		}

		if len(line) == 0 {
			if len(lines) == 0 {
				// Tolerate stray blank lines between blocks
				continue
			}

			return lines, nil
		}

		lines = append(lines, string(line))
	}
}

// ReadResponse reads and parses one server block.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	lines, err := ReadBlock(r)
	if err != nil {
		return nil, err
	}

	return ParseResponse(lines)
}

// ParseResponse interprets the lines of a server block.
func ParseResponse(lines []string) (*Response, error) {
	if len(lines) == 0 {
		return nil, ErrMalformedResponse
	}

	resp := &Response{Lines: lines}

	if strings.HasPrefix(lines[0], PrefixError) {
		resp.Err = &ServerError{Message: lines[0]}
		resp.Body = lines[1:]
		return resp, nil
	}

	code, _, _ := strings.Cut(lines[0], " ")
	status, err := strconv.Atoi(code)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse '%s': %w", lines[0], ErrMalformedResponse)
	}

	resp.Status = Status(status)

	for _, line := range lines[1:] {
		resp.parseField(line)
	}

	return resp, nil
}

// parseField fills in a known field. Lines that do not parse as one are kept
// in Body, as free-form text such as a message of the day may look like one.
func (r *Response) parseField(line string) {
	switch {
	case strings.HasPrefix(line, PrefixType):
		if t, err := strconv.Atoi(strings.TrimPrefix(line, PrefixType)); err == nil {
			r.Type = ResponseType(t)
			return
		}

	case strings.HasPrefix(line, PrefixTotal):
		if total, err := strconv.Atoi(strings.TrimPrefix(line, PrefixTotal)); err == nil {
			r.Total = total
			return
		}

	case strings.HasPrefix(line, PrefixLBytes):
		if n, err := strconv.Atoi(strings.TrimPrefix(line, PrefixLBytes)); err == nil {
			r.LBytes = n
			r.HasLBytes = true
			return
		}

	case strings.HasPrefix(line, PrefixHash) && r.Type == TypeHash:
		// Hash <index>: <digest>
		index, digest, ok := strings.Cut(strings.TrimPrefix(line, PrefixHash), ": ")
		if i, err := strconv.Atoi(index); ok && err == nil {
			r.Index = i
			r.Digest = digest
			return
		}
	}

	r.Body = append(r.Body, line)
}

func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		// Remove the optional trailing \r
		return data[:len(data)-1]
	}

	return data
}
