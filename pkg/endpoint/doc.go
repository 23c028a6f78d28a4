// Package endpoint implements an HTTP endpoint for Amazon SNS subscriptions.
//
// Every request is answered with 200 and the JSON array of recently recorded
// entries. POST requests carrying the x-amz-sns-message-type header (and, when
// Options.Path is set, sent to that path) are additionally buffered, parsed,
// recorded and dispatched to one of four handlers:
//
//	SubscriptionConfirmation   -> Handlers.Subscribe (and a GET of SubscribeURL)
//	Notification               -> Handlers.Notify
//	UnsubscriptionConfirmation -> Handlers.Unsubscribe
//	anything else              -> Handlers.Unknown
//
// The reply is written once the handler calls done. The SubscribeURL visit
// runs on its own goroutine and is never awaited by the reply; its outcome is
// recorded as a response entry whenever it finishes.
//
// # Embedding
//
// With an empty Options.Path the Server does no routing of its own:
//
//	srv := endpoint.New(endpoint.Options{
//	    Handlers: endpoint.Handlers{
//	        Notify: func(raw string, done func()) {
//	            process(raw)
//	            done()
//	        },
//	    },
//	})
//	http.Handle("/hooks/sns", srv)
package endpoint
