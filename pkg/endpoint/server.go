package endpoint

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/getmockd/snsd/pkg/fetch"
	"github.com/getmockd/snsd/pkg/httputil"
	"github.com/getmockd/snsd/pkg/logging"
	"github.com/getmockd/snsd/pkg/requestlog"
	"github.com/getmockd/snsd/pkg/sns"
)

// DefaultPath is the path served by the standalone binary.
const DefaultPath = "/amazon-sns"

// ErrMissingSubscribeURL is recorded when a SubscriptionConfirmation carries no SubscribeURL.
var ErrMissingSubscribeURL = errors.New("missing SubscribeURL")

// ErrNoResponse is recorded when a Fetcher returns neither a response nor an error.
var ErrNoResponse = errors.New("fetcher returned no response")

// Options configures a Server.
type Options struct {
	// Handlers receive dispatched messages. Nil handlers default to Noop.
	Handlers Handlers

	// Path restricts SNS processing to a single request path. Only the path
	// is compared; a query string does not stop a request from matching.
	// Empty means any path, leaving routing to the embedder.
	Path string

	// Store receives log entries. Defaults to a MemoryStore of DefaultCapacity.
	Store requestlog.Store

	// Fetcher visits SubscribeURLs. Defaults to fetch.New(nil).
	Fetcher fetch.Fetcher

	// Log is the operational logger. Defaults to logging.Nop().
	Log *slog.Logger
}

// Server is an http.Handler that records and dispatches SNS deliveries.
type Server struct {
	handlers Handlers
	path     string
	store    requestlog.Store
	fetcher  fetch.Fetcher
	log      *slog.Logger

	// pending counts SubscribeURL fetches still in flight.
	mu      sync.Mutex
	idle    *sync.Cond
	pending int
}

// New creates a Server. The options are copied; later changes have no effect.
func New(opts Options) *Server {
	s := &Server{
		handlers: opts.Handlers.WithDefaults(),
		path:     opts.Path,
		store:    opts.Store,
		fetcher:  opts.Fetcher,
		log:      opts.Log,
	}
	if s.store == nil {
		s.store = requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	}
	if s.fetcher == nil {
		s.fetcher = fetch.New(nil)
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Store returns the store entries are recorded in.
func (s *Server) Store() requestlog.Store {
	return s.store
}

// Wait blocks until no SubscribeURL fetch is in flight. It may be called
// while requests are being served; fetches started meanwhile are waited
// for as well. Replies never wait for these fetches.
func (s *Server) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

func (s *Server) fetchStarted() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

func (s *Server) fetchFinished() {
	s.mu.Lock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	msgType, ok := sns.HeaderValue(r)
	if !ok || r.Method != http.MethodPost || (s.path != "" && r.URL.Path != s.path) {
		s.log.Debug("ignoring non-SNS request", "method", r.Method, "path", r.URL.Path)
		s.respond(w)
		return
	}

	raw, err := io.ReadAll(r.Body)
	rawBody := string(raw)
	if err != nil {
		s.log.Warn("failed to read request body", "path", r.URL.Path, "error", err)
		s.store.Log(requestlog.NewRequestEntry(r.Method, r.URL.RequestURI(), r.Header, rawBody, nil, err))
		s.respond(w)
		return
	}

	parsed := sns.Parse(rawBody)
	switch res := parsed.(type) {
	case sns.Parsed:
		s.store.Log(requestlog.NewRequestEntry(r.Method, r.URL.RequestURI(), r.Header, rawBody, res.Raw, nil))
	case sns.ParseError:
		s.log.Warn("request body is not JSON", "messageType", msgType, "error", res.Err)
		s.store.Log(requestlog.NewRequestEntry(r.Method, r.URL.RequestURI(), r.Header, rawBody, nil, res.Err))
	}

	done := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(done) }) }

	s.log.Info("dispatching SNS message", "messageType", msgType, "length", len(rawBody))

	switch sns.Classify(msgType) {
	case sns.TypeSubscriptionConfirmation:
		s.confirm(context.WithoutCancel(r.Context()), parsed)
		s.handlers.Subscribe(rawBody, signal)
	case sns.TypeNotification:
		s.handlers.Notify(rawBody, signal)
	case sns.TypeUnsubscriptionConfirmation:
		s.handlers.Unsubscribe(rawBody, signal)
	default:
		s.handlers.Unknown(rawBody, signal)
	}

	select {
	case <-done:
		s.respond(w)
	case <-r.Context().Done():
		s.log.Warn("client went away before handler completed", "messageType", msgType)
	}
}

// confirm starts the SubscribeURL visit on its own goroutine.
func (s *Server) confirm(ctx context.Context, parsed sns.ParseResult) {
	res, ok := parsed.(sns.Parsed)
	if !ok {
		s.log.Warn("skipping subscription confirmation: body is not JSON")
		return
	}

	subscribeURL := res.Message.SubscribeURL
	if subscribeURL == "" {
		s.log.Warn("skipping subscription confirmation", "error", ErrMissingSubscribeURL)
		s.store.Log(requestlog.NewResponseEntry(0, nil, "", ErrMissingSubscribeURL))
		return
	}

	s.fetchStarted()
	go func() {
		defer s.fetchFinished()

		resp, err := s.fetcher.Fetch(ctx, subscribeURL)
		if err == nil && resp == nil {
			err = ErrNoResponse
		}
		if err != nil {
			s.log.Warn("subscription confirmation failed", "topicArn", res.Message.TopicArn, "error", err)
			s.store.Log(requestlog.NewResponseEntry(0, nil, "", err))
			return
		}
		s.log.Info("subscription confirmed", "topicArn", res.Message.TopicArn, "status", resp.StatusCode)
		s.store.Log(requestlog.NewResponseEntry(resp.StatusCode, resp.Header, resp.Body, nil))
	}()
}

// respond writes the current log snapshot.
func (s *Server) respond(w http.ResponseWriter) {
	httputil.WriteOK(w, s.store.List())
}
