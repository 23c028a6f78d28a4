package endpoint

// HandlerFunc receives the raw body of an SNS delivery and calls done when
// processing is complete. Repeat calls to done are ignored, and done may be
// called from any goroutine. The reply is held until done is called.
type HandlerFunc func(rawBody string, done func())

// Handlers holds one HandlerFunc per message type. Nil fields default to Noop.
type Handlers struct {
	Subscribe   HandlerFunc
	Notify      HandlerFunc
	Unsubscribe HandlerFunc
	Unknown     HandlerFunc
}

// Noop signals completion immediately.
func Noop(_ string, done func()) { done() }

// WithDefaults returns a copy of h with every nil handler replaced by Noop.
func (h Handlers) WithDefaults() Handlers {
	if h.Subscribe == nil {
		h.Subscribe = Noop
	}
	if h.Notify == nil {
		h.Notify = Noop
	}
	if h.Unsubscribe == nil {
		h.Unsubscribe = Noop
	}
	if h.Unknown == nil {
		h.Unknown = Noop
	}
	return h
}
