// Package requestlog provides the types and the bounded in-memory store used to
// capture SNS traffic for inspection.
//
// Two kinds of entries are recorded. A request entry describes an inbound SNS
// delivery (method, URL, headers, raw and parsed body). A response entry
// describes the outcome of visiting a SubscribeURL (status, headers, body).
// Either kind carries an error string when something went wrong along the way.
//
// This log is what callers of the endpoint see. It is distinct from operational
// logging, which uses log/slog.
//
// # Usage
//
//	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
//	store.Log(requestlog.NewRequestEntry(r.Method, r.URL.RequestURI(), r.Header, raw, body, err))
//	entries := store.List()
//
// # Package Design
//
// This is a leaf package with no internal dependencies, allowing it to be
// imported by any package without creating import cycles.
package requestlog
