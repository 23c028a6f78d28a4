package requestlog

import (
	"encoding/json"
	"net/http"
	"time"
)

// Kind distinguishes request entries from response entries.
type Kind string

// Entry kinds.
const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// Entry captures either an inbound SNS request or the response to an outbound
// SubscribeURL visit. Fields that do not apply to the entry's Kind are omitted
// from the JSON form.
type Entry struct {
	// ID is a unique identifier for the log entry.
	ID string `json:"id"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Kind is either "request" or "response".
	Kind Kind `json:"kind"`

	// Method is the HTTP method of an inbound request.
	Method string `json:"method,omitempty"`

	// URL is the request URI (path and query) of an inbound request.
	URL string `json:"url,omitempty"`

	// Status is the status code returned by the SubscribeURL.
	Status int `json:"status,omitempty"`

	// Headers are the request or response headers (multi-value).
	Headers map[string][]string `json:"headers,omitempty"`

	// RawBody is the unparsed inbound request body.
	RawBody *string `json:"rawBody,omitempty"`

	// Length is the byte length of RawBody.
	Length *int `json:"length,omitempty"`

	// Body is the parsed JSON document for request entries (absent when
	// parsing failed) and the body string for response entries.
	Body any `json:"body,omitempty"`

	// Error describes what went wrong, if anything.
	Error string `json:"error,omitempty"`
}

// NewRequestEntry builds a request entry. parsed is the raw JSON document of a
// successfully decoded body and must be nil when parseErr is set.
func NewRequestEntry(method, url string, headers http.Header, rawBody string, parsed json.RawMessage, parseErr error) *Entry {
	length := len(rawBody)
	e := &Entry{
		Kind:    KindRequest,
		Method:  method,
		URL:     url,
		Headers: cloneHeader(headers),
		RawBody: &rawBody,
		Length:  &length,
	}
	if parseErr != nil {
		e.Error = parseErr.Error()
	} else if parsed != nil {
		e.Body = parsed
	}
	return e
}

// NewResponseEntry builds a response entry. When err is set the response
// fields are left empty, matching a transport failure with no response data.
func NewResponseEntry(status int, headers http.Header, body string, err error) *Entry {
	if err != nil {
		return &Entry{Kind: KindResponse, Error: err.Error()}
	}
	return &Entry{
		Kind:    KindResponse,
		Status:  status,
		Headers: cloneHeader(headers),
		Body:    body,
	}
}

func cloneHeader(h http.Header) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	return map[string][]string(h.Clone())
}
