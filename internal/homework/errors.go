package homework

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// bodyExcerpt caps the response body kept in a ParseError, in bytes.
const bodyExcerpt = 300

// NetworkError means the endpoint could not be reached, timed out, or answered
// with a non-2xx status.
type NetworkError struct {
	Endpoint   string
	StatusCode int // 0 when no response was received

	// API error payload, when the endpoint returned one.
	Code    string
	Message string

	Err error
}

func (e *NetworkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "endpoint %s", e.Endpoint)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " unavailable: http %d", e.StatusCode)
	} else {
		b.WriteString(" unreachable")
	}
	if e.Code != "" || e.Message != "" {
		fmt.Fprintf(&b, " (%s: %s)", e.Code, e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError means the response body was not the expected JSON document.
type ParseError struct {
	Reason string
	Body   string // truncated excerpt for diagnostics
	Err    error
}

func (e *ParseError) Error() string {
	msg := "unexpected api response: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(reason string, body []byte, err error) *ParseError {
	excerpt := string(body)
	if len(excerpt) > bodyExcerpt {
		cut := bodyExcerpt
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut] + "..."
	}
	return &ParseError{Reason: reason, Body: excerpt, Err: err}
}
