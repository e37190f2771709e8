package protocol

import (
	"errors"
	"strings"
)

// Response is a parsed server block.
type Response struct {
	Status Status
	Type   ResponseType

	// Total is the expected size of all hash responses, set on acks.
	Total int

	// Index and Digest are set on hash responses.
	Index  int
	Digest string

	LBytes    int
	HasLBytes bool

	// Body holds any line that is not one of the fields above, e.g. the
	// message of the day.
	Body []string

	// Err is set when the server replied with an error instead of a status.
	Err error

	Lines []string
}

// ErrorOrNil returns an error if the response contains an error. Otherwise it
// returns nil.
func (r *Response) ErrorOrNil() error {
	return r.Err
}

// IsOK reports whether the server replied 200 OK.
func (r *Response) IsOK() bool {
	return r.Err == nil && r.Status == StatusOK
}

// String returns the block as the server sent it, one line per field.
func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// ServerError is an error message the server sent in place of a status line.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// StatusError is returned by ErrorOrNil-style helpers when the server replied
// with a non 200 status.
type StatusError struct {
	Status Status
	Body   []string
}

func (e *StatusError) Error() string {
	msg := strings.Join(e.Body, " ")
	if msg == "" {
		msg = e.Status.Text()
	}

	return msg
}

// AsStatusError returns the error carried by a non OK response, or nil.
func (r *Response) AsStatusError() error {
	if r.Err != nil {
		return r.Err
	}

	if r.Status != StatusOK {
		return &StatusError{Status: r.Status, Body: r.Body}
	}

	return nil
}

// IsServerError reports whether err came from an error line sent by the server.
func IsServerError(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}
