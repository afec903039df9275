package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmcleod/ballotbox/auth"
)

var (
	// ErrUnauthorized is returned for every HTTP 401 after the unauthorized
	// hook has run.
	ErrUnauthorized = auth.ErrUnauthorized
	// ErrTransport wraps failures where no HTTP response was received.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse reports a 2xx body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is a non-2xx HTTP response. Message carries the server's
// explanation when the body had one.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server responded %d %s", e.Status, http.StatusText(e.Status))
}

// Is makes a 401 StatusError match ErrUnauthorized.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// LogicalError is a 2xx response whose envelope said success:false.
type LogicalError struct {
	Message string
}

func (e *LogicalError) Error() string {
	if e.Message == "" {
		return "request was not successful"
	}
	return e.Message
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}

// serverMessage extracts a human readable message from an error body. The
// backend uses {"message": ...}; plain-text bodies are used as is.
func serverMessage(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		switch {
		case env.Message != "":
			return env.Message
		case env.Error != "":
			return env.Error
		case env.Msg != "":
			return env.Msg
		}
		return ""
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}
