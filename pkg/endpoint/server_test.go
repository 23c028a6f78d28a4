package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/snsd/pkg/fetch"
	"github.com/getmockd/snsd/pkg/requestlog"
	"github.com/getmockd/snsd/pkg/sns"
)

const confirmBody = `{"Type":"SubscriptionConfirmation","MessageId":"165545c9","Token":"2336412f","TopicArn":"arn:aws:sns:us-west-2:123456789012:MyTopic","SubscribeURL":"https://sns.us-west-2.amazonaws.com/?Action=ConfirmSubscription&Token=2336412f"}`

const notifyBody = `{"Type":"Notification","MessageId":"22b80b92","TopicArn":"arn:aws:sns:us-west-2:123456789012:MyTopic","Subject":"hello","Message":"world"}`

// fakeFetcher records every URL it is asked for.
type fakeFetcher struct {
	mu   sync.Mutex
	urls []string
	resp *fetch.Response
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// recorder counts handler invocations.
type recorder struct {
	mu     sync.Mutex
	bodies map[string][]string
}

func (r *recorder) handler(name string) HandlerFunc {
	return func(raw string, done func()) {
		r.mu.Lock()
		if r.bodies == nil {
			r.bodies = make(map[string][]string)
		}
		r.bodies[name] = append(r.bodies[name], raw)
		r.mu.Unlock()
		done()
	}
}

func (r *recorder) get(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[name]
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		Subscribe:   r.handler("subscribe"),
		Notify:      r.handler("notify"),
		Unsubscribe: r.handler("unsubscribe"),
		Unknown:     r.handler("unknown"),
	}
}

func newSNSRequest(path, msgType, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if msgType != "" {
		req.Header.Set(sns.MessageTypeHeader, msgType)
	}
	return req
}

func serve(t *testing.T, srv *Server, req *http.Request) []map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	return entries
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	srv := New(Options{})

	require.NotNil(t, srv.Store())
	assert.NotNil(t, srv.fetcher)
	assert.NotNil(t, srv.log)
	assert.NotNil(t, srv.handlers.Unknown)
}

func TestServer_IgnoresNonSNSRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"GET", httptest.NewRequest(http.MethodGet, DefaultPath, nil)},
		{"PUT with header", func() *http.Request {
			r := httptest.NewRequest(http.MethodPut, DefaultPath, strings.NewReader(notifyBody))
			r.Header.Set(sns.MessageTypeHeader, "Notification")
			return r
		}()},
		{"POST without header", newSNSRequest(DefaultPath, "", notifyBody)},
		{"POST to other path", newSNSRequest("/elsewhere", "Notification", notifyBody)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &recorder{}
			store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
			store.Log(&requestlog.Entry{ID: "existing", Kind: requestlog.KindRequest})
			srv := New(Options{Handlers: rec.handlers(), Path: DefaultPath, Store: store})

			entries := serve(t, srv, tt.req)

			require.Len(t, entries, 1)
			assert.Equal(t, "existing", entries[0]["id"])
			assert.Equal(t, 1, store.Count())
			assert.Empty(t, rec.get("notify"))
		})
	}
}

func TestServer_EmptyLogIsEmptyArray(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New(Options{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_LibraryVariantIgnoresPath(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	srv := New(Options{Handlers: rec.handlers()})

	entries := serve(t, srv, newSNSRequest("/hooks/anything", "Notification", notifyBody))

	require.Len(t, entries, 1)
	assert.Equal(t, "/hooks/anything", entries[0]["url"])
	assert.Equal(t, []string{notifyBody}, rec.get("notify"))
}

func TestServer_Notification(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ff := &fakeFetcher{}
	srv := New(Options{Handlers: rec.handlers(), Path: DefaultPath, Fetcher: ff})

	entries := serve(t, srv, newSNSRequest(DefaultPath+"?x=1", "Notification", notifyBody))

	assert.Equal(t, []string{notifyBody}, rec.get("notify"))
	assert.Empty(t, rec.get("subscribe"))
	assert.Empty(t, ff.calls())

	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "request", e["kind"])
	assert.Equal(t, http.MethodPost, e["method"])
	assert.Equal(t, DefaultPath+"?x=1", e["url"])
	assert.Equal(t, notifyBody, e["rawBody"])
	assert.InDelta(t, len(notifyBody), e["length"], 0)
	assert.NotContains(t, e, "error")

	body, ok := e["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "world", body["Message"])

	headers, ok := e["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Notification"}, headers["X-Amz-Sns-Message-Type"])
}

func TestServer_DispatchByMessageType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msgType string
		handler string
	}{
		{"SubscriptionConfirmation", "subscribe"},
		{"Notification", "notify"},
		{"UnsubscriptionConfirmation", "unsubscribe"},
		{"SomethingElse", "unknown"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.msgType, func(t *testing.T) {
			t.Parallel()
			rec := &recorder{}
			srv := New(Options{
				Handlers: rec.handlers(),
				Fetcher:  &fakeFetcher{resp: &fetch.Response{StatusCode: 200}},
			})

			body := `{"Type":"` + tt.msgType + `","SubscribeURL":"https://example.com/confirm"}`
			serve(t, srv, newSNSRequest("/", tt.msgType, body))
			srv.Wait()

			for _, name := range []string{"subscribe", "notify", "unsubscribe", "unknown"} {
				if name == tt.handler {
					assert.Equal(t, []string{body}, rec.get(name), name)
				} else {
					assert.Empty(t, rec.get(name), name)
				}
			}
		})
	}
}

func TestServer_SubscriptionConfirmation(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ff := &fakeFetcher{resp: &fetch.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/xml"}},
		Body:       "<ConfirmSubscriptionResponse/>",
	}}
	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	srv := New(Options{Handlers: rec.handlers(), Path: DefaultPath, Fetcher: ff, Store: store})

	serve(t, srv, newSNSRequest(DefaultPath, "SubscriptionConfirmation", confirmBody))
	srv.Wait()

	assert.Equal(t, []string{"https://sns.us-west-2.amazonaws.com/?Action=ConfirmSubscription&Token=2336412f"}, ff.calls())
	assert.Equal(t, []string{confirmBody}, rec.get("subscribe"))

	entries := store.List()
	require.Len(t, entries, 2)
	assert.Equal(t, requestlog.KindRequest, entries[0].Kind)

	resp := entries[1]
	assert.Equal(t, requestlog.KindResponse, resp.Kind)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "<ConfirmSubscriptionResponse/>", resp.Body)
	assert.Equal(t, []string{"text/xml"}, resp.Headers["Content-Type"])
	assert.Empty(t, resp.Error)

	// The next request sees the response entry.
	entries2 := serve(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, entries2, 2)
	assert.Equal(t, "response", entries2[1]["kind"])
}

func TestServer_SubscriptionConfirmationFetchError(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ff := &fakeFetcher{err: errors.New("dial tcp: connection refused")}
	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	srv := New(Options{Handlers: rec.handlers(), Fetcher: ff, Store: store})

	serve(t, srv, newSNSRequest("/", "SubscriptionConfirmation", confirmBody))
	srv.Wait()

	assert.Len(t, ff.calls(), 1)
	assert.Len(t, rec.get("subscribe"), 1)

	entries := store.List()
	require.Len(t, entries, 2)
	assert.Equal(t, requestlog.KindResponse, entries[1].Kind)
	assert.Equal(t, "dial tcp: connection refused", entries[1].Error)
	assert.Zero(t, entries[1].Status)
}

func TestServer_SubscriptionConfirmationMissingURL(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ff := &fakeFetcher{}
	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	srv := New(Options{Handlers: rec.handlers(), Fetcher: ff, Store: store})

	serve(t, srv, newSNSRequest("/", "SubscriptionConfirmation", `{"Type":"SubscriptionConfirmation"}`))
	srv.Wait()

	assert.Empty(t, ff.calls())
	assert.Len(t, rec.get("subscribe"), 1)

	entries := store.List()
	require.Len(t, entries, 2)
	assert.Equal(t, requestlog.KindResponse, entries[1].Kind)
	assert.Equal(t, ErrMissingSubscribeURL.Error(), entries[1].Error)
}

func TestServer_SubscriptionConfirmationMalformedBody(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ff := &fakeFetcher{}
	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	srv := New(Options{Handlers: rec.handlers(), Fetcher: ff, Store: store})

	serve(t, srv, newSNSRequest("/", "SubscriptionConfirmation", `{"SubscribeURL":`))
	srv.Wait()

	assert.Empty(t, ff.calls())
	assert.Equal(t, []string{`{"SubscribeURL":`}, rec.get("subscribe"))

	entries := store.List()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Error)
}

func TestServer_MalformedJSON(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	srv := New(Options{Handlers: rec.handlers()})

	entries := serve(t, srv, newSNSRequest("/", "Notification", "not json"))

	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0], "body")
	assert.NotEmpty(t, entries[0]["error"])
	assert.Equal(t, "not json", entries[0]["rawBody"])
	assert.Equal(t, []string{"not json"}, rec.get("notify"))
}

func TestServer_LogIsBounded(t *testing.T) {
	t.Parallel()
	srv := New(Options{})

	var entries []map[string]any
	for i := 0; i < 25; i++ {
		entries = serve(t, srv, newSNSRequest("/", "Notification", notifyBody))
	}

	assert.Len(t, entries, requestlog.DefaultCapacity)
	assert.Equal(t, requestlog.DefaultCapacity, srv.Store().Count())
}

func TestServer_RespondsAfterHandlerCompletes(t *testing.T) {
	t.Parallel()

	called := make(chan func(), 1)
	srv := New(Options{Handlers: Handlers{
		Notify: func(_ string, done func()) {
			// Complete asynchronously, after the test releases it.
			called <- done
		},
	}})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/", strings.NewReader(notifyBody))
		req.Header.Set(sns.MessageTypeHeader, "Notification")
		resp, err := ts.Client().Do(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	var done func()
	select {
	case done = <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("notify handler was not invoked")
	}

	select {
	case <-respCh:
		t.Fatal("response sent before handler completed")
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	done()
	done() // repeat calls are ignored

	select {
	case resp := <-respCh:
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var entries []map[string]any
		require.NoError(t, json.Unmarshal(data, &entries))
		assert.Len(t, entries, 1)
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no response after handler completed")
	}
}

func TestServer_ClientGoneBeforeCompletion(t *testing.T) {
	t.Parallel()
	srv := New(Options{Handlers: Handlers{Notify: func(string, func()) {}}})

	ctx, cancel := context.WithCancel(context.Background())
	req := newSNSRequest("/", "Notification", notifyBody).WithContext(ctx)
	rec := httptest.NewRecorder()

	finished := make(chan struct{})
	go func() {
		srv.ServeHTTP(rec, req)
		close(finished)
	}()

	cancel()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("ServeHTTP did not return after the client went away")
	}

	assert.Empty(t, rec.Body.String())
	assert.Equal(t, 1, srv.Store().Count())
}

func TestServer_ResponseMatchesStore(t *testing.T) {
	t.Parallel()
	ff := &fakeFetcher{resp: &fetch.Response{StatusCode: 200, Body: "ok"}}
	srv := New(Options{Fetcher: ff})

	serve(t, srv, newSNSRequest("/", "SubscriptionConfirmation", confirmBody))
	srv.Wait()
	serve(t, srv, newSNSRequest("/", "Notification", "{broken"))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want, err := json.Marshal(srv.Store().List())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), rec.Body.String())

	var decoded []requestlog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Len(t, decoded, 3)
	for i, e := range srv.Store().List() {
		assert.Equal(t, e.ID, decoded[i].ID)
		assert.Equal(t, e.Kind, decoded[i].Kind)
		assert.Equal(t, e.Error, decoded[i].Error)
		assert.Equal(t, e.RawBody, decoded[i].RawBody)
		assert.Equal(t, e.Length, decoded[i].Length)
		assert.Equal(t, e.Status, decoded[i].Status)
		assert.True(t, e.Timestamp.Equal(decoded[i].Timestamp))
	}
}

func TestServer_ConfirmsOverTLS(t *testing.T) {
	t.Parallel()

	confirmed := make(chan string, 1)
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		confirmed <- r.URL.Query().Get("Token")
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte("<ConfirmSubscriptionResponse/>"))
	}))
	defer upstream.Close()

	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	srv := New(Options{Path: DefaultPath, Store: store, Fetcher: fetch.New(upstream.Client())})

	body := `{"Type":"SubscriptionConfirmation","Token":"abc","SubscribeURL":"` + upstream.URL + `/?Action=ConfirmSubscription&Token=abc"}`
	serve(t, srv, newSNSRequest(DefaultPath, "SubscriptionConfirmation", body))
	srv.Wait()

	assert.Equal(t, "abc", <-confirmed)
	entries := store.List()
	require.Len(t, entries, 2)
	assert.Equal(t, http.StatusOK, entries[1].Status)
	assert.Equal(t, "<ConfirmSubscriptionResponse/>", entries[1].Body)
}

func TestServer_SubscriptionConfirmationNilResponse(t *testing.T) {
	t.Parallel()
	ff := &fakeFetcher{} // returns neither a response nor an error
	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	srv := New(Options{Fetcher: ff, Store: store})

	serve(t, srv, newSNSRequest("/", "SubscriptionConfirmation", confirmBody))
	srv.Wait()

	assert.Len(t, ff.calls(), 1)
	entries := store.List()
	require.Len(t, entries, 2)
	assert.Equal(t, requestlog.KindResponse, entries[1].Kind)
	assert.Equal(t, ErrNoResponse.Error(), entries[1].Error)
}

func TestServer_PathMatchIgnoresQuery(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	srv := New(Options{Handlers: rec.handlers(), Path: DefaultPath})

	entries := serve(t, srv, newSNSRequest(DefaultPath+"?tag=prod", "Notification", notifyBody))
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultPath+"?tag=prod", entries[0]["url"])

	entries = serve(t, srv, newSNSRequest(DefaultPath+"/extra", "Notification", notifyBody))
	assert.Len(t, entries, 1)
	assert.Len(t, rec.get("notify"), 1)
}

// gatedFetcher blocks every Fetch until release is closed.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Fetch(_ context.Context, _ string) (*fetch.Response, error) {
	f.started <- struct{}{}
	<-f.release
	return &fetch.Response{StatusCode: http.StatusOK}, nil
}

func TestServer_WaitWhileServing(t *testing.T) {
	t.Parallel()
	gf := &gatedFetcher{started: make(chan struct{}, 2), release: make(chan struct{})}
	store := requestlog.NewMemoryStore(requestlog.DefaultCapacity)
	srv := New(Options{Fetcher: gf, Store: store})

	// Nothing in flight: returns at once.
	srv.Wait()

	serve(t, srv, newSNSRequest("/", "SubscriptionConfirmation", confirmBody))
	<-gf.started

	waited := make(chan struct{})
	go func() {
		srv.Wait()
		close(waited)
	}()

	// A second fetch starts while Wait is blocked.
	serve(t, srv, newSNSRequest("/", "SubscriptionConfirmation", confirmBody))
	<-gf.started

	select {
	case <-waited:
		t.Fatal("Wait returned while fetches were in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gf.release)
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after fetches finished")
	}

	assert.Equal(t, 4, store.Count())
}
