package sns

import (
	"encoding/json"
	"net/http"
)

// MessageTypeHeader is the header SNS sets on every delivery.
const MessageTypeHeader = "x-amz-sns-message-type"

// MessageType classifies an SNS delivery.
type MessageType string

// Recognized message types.
const (
	TypeSubscriptionConfirmation   MessageType = "SubscriptionConfirmation"
	TypeNotification               MessageType = "Notification"
	TypeUnsubscriptionConfirmation MessageType = "UnsubscriptionConfirmation"
	TypeUnknown                    MessageType = ""
)

// Classify maps a header value to a recognized message type.
// Anything else, including an empty value, is TypeUnknown.
func Classify(value string) MessageType {
	switch t := MessageType(value); t {
	case TypeSubscriptionConfirmation, TypeNotification, TypeUnsubscriptionConfirmation:
		return t
	default:
		return TypeUnknown
	}
}

// HeaderValue returns the raw message-type header of r and whether it is present.
func HeaderValue(r *http.Request) (string, bool) {
	v := r.Header.Get(MessageTypeHeader)
	return v, v != ""
}

// Message is the JSON document SNS posts to HTTP(S) subscribers.
// Unknown fields are ignored.
type Message struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	Token            string `json:"Token,omitempty"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion,omitempty"`
	Signature        string `json:"Signature,omitempty"`
	SigningCertURL   string `json:"SigningCertURL,omitempty"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
}

// ParseResult is the outcome of Parse: either Parsed or ParseError.
type ParseResult interface {
	parseResult()
}

// Parsed holds a body that is a well-formed JSON document.
type Parsed struct {
	// Raw is the document exactly as received.
	Raw json.RawMessage
	// Message is Raw decoded into the SNS fields it carries. Fields the
	// document lacks, or carries with other JSON types, are left empty.
	Message Message
}

// ParseError holds the reason a body is not a JSON document.
type ParseError struct {
	Err error
}

func (Parsed) parseResult()     {}
func (ParseError) parseResult() {}

// Error implements error.
func (e ParseError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying decoding error.
func (e ParseError) Unwrap() error { return e.Err }

// Parse decodes raw as a JSON document.
func Parse(raw string) ParseResult {
	var doc json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ParseError{Err: err}
	}

	res := Parsed{Raw: doc}
	// Best effort: a valid document that is not an SNS object (an array,
	// a string, a field of the wrong type) still counts as parsed.
	_ = json.Unmarshal(doc, &res.Message)
	return res
}
