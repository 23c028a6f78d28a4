package requestlog

// Store defines the interface for the request history served to callers.
type Store interface {
	// Log records an entry.
	Log(entry *Entry)

	// List returns a snapshot of all entries, oldest first.
	List() []*Entry

	// Count returns the number of log entries.
	Count() int
}
