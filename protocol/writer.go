package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/luma/linehash/digest"
)

// HashResponseSize is the advertised size of one hash response. The ack
// reports HashResponseSize times the declared request count.
const HashResponseSize = 38

var (
	Terminal = []byte("\r\n")
)

// ExpectedResponseSize is the total response size advertised for n requests.
func ExpectedResponseSize(n int) int {
	return HashResponseSize * n
}

// WriteLine writes a single client message.
func WriteLine(w io.Writer, line string) error {
	b := append([]byte(line), Terminal...)
	_, err := w.Write(b)
	return err
}

// WriteLines writes several client messages with a single Write, so that a
// command and its argument reach the server together.
func WriteLines(w io.Writer, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.Write(Terminal)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteBlock writes a server block: every line followed by \r\n and then an
// empty line.
func WriteBlock(w io.Writer, lines ...string) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.Write(Terminal)
	}

	buf.Write(Terminal)

	_, err := w.Write(buf.Bytes())
	return err
}

// StatusLine formats the first line of a status block, e.g. "200 OK".
func StatusLine(status Status) string {
	return fmt.Sprintf("%d %s", status, status.Text())
}

func TypeLine(t ResponseType) string {
	return PrefixType + strconv.Itoa(int(t))
}

func WriteStatus(w io.Writer, status Status, body ...string) error {
	return WriteBlock(w, append([]string{StatusLine(status)}, body...)...)
}

func WriteOk(w io.Writer, body ...string) error {
	return WriteStatus(w, StatusOK, body...)
}

// WriteAck acknowledges a handshake declaring n requests.
func WriteAck(w io.Writer, n int) error {
	return WriteStatus(w, StatusOK,
		TypeLine(TypeAck),
		PrefixTotal+strconv.Itoa(ExpectedResponseSize(n)),
	)
}

// WriteCountRejected rejects a handshake whose count could not be used.
func WriteCountRejected(w io.Writer, countErr *CountError) error {
	return WriteStatus(w, StatusUnprocessableEntity,
		TypeLine(TypeAck),
		PrefixError+countErr.Error(),
	)
}

// WriteHash answers the line request at index with its digest.
func WriteHash(w io.Writer, index int, d string, req LineRequest) error {
	lines := []string{
		StatusLine(StatusOK),
		TypeLine(TypeHash),
		fmt.Sprintf("%s%d: %s", PrefixHash, index, d),
	}

	if req.HasLBytes {
		lines = append(lines, PrefixLBytes+strconv.Itoa(req.LBytes))
	}

	return WriteBlock(w, lines...)
}

// WriteLineTooLong reports that the line with the given 1-based number
// exceeded the digest's maximum length.
func WriteLineTooLong(w io.Writer, lineNumber int) error {
	return WriteBlock(w, LineTooLongMessage(lineNumber))
}

func LineTooLongMessage(lineNumber int) string {
	return fmt.Sprintf("%sLine %d has more than %d chars.", PrefixError, lineNumber, digest.MaxLineLength)
}

// WriteCount sends the handshake.
func WriteCount(w io.Writer, n int) error {
	return WriteLine(w, strconv.Itoa(n))
}

func WriteLineRequest(w io.Writer, req LineRequest) error {
	b, err := req.Marshal()
	if err != nil {
		return err
	}

	return WriteLine(w, string(b))
}

// WriteCommand sends a command and, for MSGSTORE and SHUTDOWN, its argument.
func WriteCommand(w io.Writer, cmd Command, arg string) error {
	if cmd.HasArgument() {
		return WriteLines(w, string(cmd), arg)
	}

	return WriteLine(w, string(cmd))
}
