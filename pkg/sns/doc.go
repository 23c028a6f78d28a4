// Package sns describes the HTTP(S) delivery format used by Amazon SNS:
// the message-type header, the recognized message types and the JSON
// message document.
//
// Bodies are decoded with Parse, which returns a ParseResult that is either
// Parsed or ParseError. Callers switch on the concrete type instead of
// probing optional fields:
//
//	switch res := sns.Parse(raw).(type) {
//	case sns.Parsed:
//	    url := res.Message.SubscribeURL
//	case sns.ParseError:
//	    log.Warn("bad body", "error", res.Err)
//	}
package sns
