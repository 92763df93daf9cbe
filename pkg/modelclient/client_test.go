package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/natserract/raclients/internal/authtest"
	"github.com/natserract/raclients/pkg/auth"
	"github.com/natserract/raclients/pkg/config"
	httpclient "github.com/natserract/raclients/pkg/http"
)

var testRoutes = Routes{
	"employee": {Path: "/service/e/create"},
	"org_unit": {Path: "/service/ou/create"},
	"class":    {Path: "/service/f/{facet_uuid}/"},
}

var testEditRoutes = Routes{
	"employee": {Path: "/service/details/edit"},
}

var fastRetry = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	Multiplier:      2,
	MaxInterval:     5 * time.Millisecond,
}

type request struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// backend records requests and answers them through respond.
type backend struct {
	*httptest.Server
	mu       sync.Mutex
	requests []request
	hits     atomic.Int32
}

func newBackend(t *testing.T, respond func(w http.ResponseWriter, req request)) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		if r.Header.Get("Authorization") != authtest.BearerHeader() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		req := request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		_ = json.NewDecoder(r.Body).Decode(&req.Body)
		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		respond(w, req)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) Requests() []request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]request(nil), b.requests...)
}

func echoUUID(w http.ResponseWriter, req request) {
	_ = json.NewEncoder(w).Encode(req.Body["uuid"])
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	kc := authtest.NewKeycloak(t)
	authClient, err := auth.NewClient(config.Defaults(),
		auth.WithClientID(authtest.ClientID),
		auth.WithClientSecret(authtest.ClientSecret),
		auth.WithAuthServer(kc.AuthServer()),
		auth.WithAuthRealm(authtest.Realm),
		auth.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)

	opts = append([]Option{WithRetryPolicy(fastRetry), WithProgress(NopProgress{})}, opts...)
	client, err := New(authClient, Config{
		BaseURL:      baseURL,
		Method:       http.MethodPost,
		CreateRoutes: testRoutes,
		EditRoutes:   testEditRoutes,
		Query:        map[string]string{"force": "0"},
	}, opts...)
	require.NoError(t, err)
	return client
}

func employees(n int) ([]Object, []any) {
	objs := make([]Object, n)
	ids := make([]any, n)
	for i := range objs {
		id := uuid.New()
		objs[i] = NewObject("employee", &id, map[string]any{"name": fmt.Sprintf("Employee %d", i)})
		ids[i] = id.String()
	}
	return objs, ids
}

func TestNewRequiresBaseURL(t *testing.T) {
	kc := authtest.NewKeycloak(t)
	authClient, err := auth.NewClient(config.Defaults(),
		auth.WithClientID(authtest.ClientID),
		auth.WithClientSecret(authtest.ClientSecret),
		auth.WithAuthServer(kc.AuthServer()),
		auth.WithAuthRealm(authtest.Realm),
		auth.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)

	_, err = New(authClient, Config{})
	assert.Error(t, err)

	_, err = New(nil, Config{BaseURL: "http://mo"})
	assert.Error(t, err)

	client, err := New(authClient, Config{BaseURL: "http://mo", Method: "put"}, WithChunkSize(0))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, client.Method())
	assert.Equal(t, DefaultChunkSize, client.ChunkSize())
}

func TestUploadSingleObject(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		_, _ = w.Write([]byte(`{"uuid":"a"}`))
	})
	client := newTestClient(t, srv.URL)

	obj := NewObject("org_unit", nil, map[string]any{"name": "Hogwarts", "parent": nil})
	results, err := client.Upload(context.Background(), []Object{obj})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"uuid": "a"}}, results)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/service/ou/create", reqs[0].Path)
	assert.Equal(t, "force=0", reqs[0].Query)
	assert.Equal(t, map[string]any{"type": "org_unit", "name": "Hogwarts"}, reqs[0].Body)
}

func TestUploadManyObjects(t *testing.T) {
	srv := newBackend(t, echoUUID)
	client := newTestClient(t, srv.URL)

	objs, ids := employees(25)
	results, err := client.Upload(context.Background(), objs)
	require.NoError(t, err)
	assert.Len(t, results, len(objs))
	assert.ElementsMatch(t, ids, results)
}

type recordingProgress struct {
	total      int
	labels     []string
	increments int
	finished   bool
}

func (p *recordingProgress) Start(total int) Tracker {
	p.total = total
	return p
}

func (p *recordingProgress) Describe(label string) { p.labels = append(p.labels, label) }
func (p *recordingProgress) Increment()            { p.increments++ }
func (p *recordingProgress) Finish()               { p.finished = true }

func TestUploadGroupsByKind(t *testing.T) {
	srv := newBackend(t, echoUUID)
	progress := &recordingProgress{}
	client := newTestClient(t, srv.URL, WithProgress(progress))

	objs, _ := employees(3)
	unit := NewObject("org_unit", nil, map[string]any{"name": "Hogwarts"})
	objs = append(objs[:2:2], unit, objs[2])

	results, err := client.Upload(context.Background(), objs)
	require.NoError(t, err)
	assert.Len(t, results, 4)

	assert.Equal(t, 4, progress.total)
	assert.Equal(t, []string{"employee", "org_unit", "employee"}, progress.labels)
	assert.Equal(t, 4, progress.increments)
	assert.True(t, progress.finished)

	reqs := srv.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, "/service/ou/create", reqs[2].Path)
}

func TestGroupByKindKeepsRuns(t *testing.T) {
	objs := []Object{
		NewObject("employee", nil, nil),
		NewObject("employee", nil, nil),
		NewObject("org_unit", nil, nil),
		NewObject("employee", nil, nil),
	}
	var got []string
	for _, group := range groupByKind(objs) {
		got = append(got, fmt.Sprintf("%s:%d", group.kind, len(group.objects)))
	}
	assert.Equal(t, []string{"employee:2", "org_unit:1", "employee:1"}, got)
}

func TestUploadRunsChunksConcurrentlyAndInSequence(t *testing.T) {
	const chunkSize = 10
	var active, peak, started, finished atomic.Int32
	var overlapped atomic.Bool
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		n := started.Add(1)
		// Every request of earlier chunks must be done before a chunk starts.
		if finished.Load() < (n-1)/chunkSize*chunkSize {
			overlapped.Store(true)
		}
		current := active.Add(1)
		for {
			p := peak.Load()
			if current <= p || peak.CompareAndSwap(p, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		finished.Add(1)
		echoUUID(w, req)
	})
	client := newTestClient(t, srv.URL, WithChunkSize(chunkSize))

	objs, ids := employees(25)
	results, err := client.Upload(context.Background(), objs)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, results)

	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(chunkSize))
	assert.False(t, overlapped.Load(), "a chunk started before the previous one finished")
	assert.Equal(t, int32(25), finished.Load())
}

func TestUploadExpandsPathPlaceholders(t *testing.T) {
	srv := newBackend(t, echoUUID)
	client := newTestClient(t, srv.URL)

	facet := uuid.New()
	obj := NewObject("class", nil, map[string]any{"name": "Manager", "facet_uuid": facet.String()})
	_, err := client.UploadObject(context.Background(), obj, false)
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/service/f/"+facet.String()+"/", reqs[0].Path)

	_, err = client.UploadObject(context.Background(), NewObject("class", nil, nil), false)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Len(t, srv.Requests(), 1)
}

func TestUploadUnknownKind(t *testing.T) {
	srv := newBackend(t, echoUUID)
	client := newTestClient(t, srv.URL)

	_, err := client.Upload(context.Background(), []Object{NewObject("dragon", nil, nil)})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Empty(t, srv.Requests())
}

func TestEditWrapsObject(t *testing.T) {
	srv := newBackend(t, echoUUID)
	client := newTestClient(t, srv.URL)

	id := uuid.New()
	obj := NewObject("employee", &id, map[string]any{"name": "Harry"})
	results, err := client.Edit(context.Background(), []Object{obj})
	require.NoError(t, err)
	assert.Equal(t, []any{id.String()}, results)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/service/details/edit", reqs[0].Path)
	assert.Equal(t, map[string]any{
		"uuid": id.String(),
		"type": "employee",
		"data": map[string]any{"uuid": id.String(), "type": "employee", "name": "Harry"},
	}, reqs[0].Body)

	_, err = client.Edit(context.Background(), []Object{NewObject("employee", nil, nil)})
	assert.ErrorIs(t, err, ErrMissingUUID)

	_, err = client.Edit(context.Background(), []Object{NewObject("org_unit", &id, nil)})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestUploadErrorDescription(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"description":"big error"}`))
	})
	client := newTestClient(t, srv.URL)

	_, err := client.Upload(context.Background(), []Object{NewObject("org_unit", nil, nil)})
	require.Error(t, err)
	assert.Equal(t, "big error", err.Error())

	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.URL, "/service/ou/create")
}

func TestUploadErrorWithoutDescription(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"oh":"no"}`))
	})
	client := newTestClient(t, srv.URL)

	_, err := client.Upload(context.Background(), []Object{NewObject("org_unit", nil, nil)})
	require.Error(t, err)
	assert.Equal(t, "Not Found", err.Error())
}

func TestUploadErrorIgnoresNonStringDescription(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"description":{"error":"nested"}}`))
	})
	client := newTestClient(t, srv.URL)

	_, err := client.Upload(context.Background(), []Object{NewObject("org_unit", nil, nil)})
	require.Error(t, err)
	assert.Equal(t, "Unprocessable Entity", err.Error())
}

func TestUploadRetriesStatusErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`"ok"`))
	})
	client := newTestClient(t, srv.URL)

	result, err := client.UploadObject(context.Background(), NewObject("org_unit", nil, nil), false)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUploadGivesUpAfterMaxAttempts(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := newTestClient(t, srv.URL)

	_, err := client.UploadObject(context.Background(), NewObject("org_unit", nil, nil), false)
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Len(t, srv.Requests(), 3)
}

func TestUploadDoesNotRetryConnectionErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL)

	_, err := client.UploadObject(context.Background(), NewObject("org_unit", nil, nil), false)
	require.Error(t, err)
	var statusErr *httpclient.StatusError
	assert.False(t, errors.As(err, &statusErr))
	assert.Equal(t, int32(1), hits.Load())
}

func TestUploadReturnsPartialResults(t *testing.T) {
	objs, _ := employees(15)
	failing := objs[12].UUID.String()
	srv := newBackend(t, func(w http.ResponseWriter, req request) {
		if req.Body["uuid"] == failing {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		echoUUID(w, req)
	})
	client := newTestClient(t, srv.URL)

	results, err := client.Upload(context.Background(), objs)
	require.Error(t, err)
	assert.GreaterOrEqual(t, len(results), 10)
	assert.Less(t, len(results), 15)
}

func TestUploadLazyStopsOnBreak(t *testing.T) {
	srv := newBackend(t, echoUUID)
	client := newTestClient(t, srv.URL)

	objs, _ := employees(25)
	seen := 0
	for v, err := range client.UploadLazy(context.Background(), objs) {
		require.NoError(t, err)
		require.NotNil(t, v)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
	assert.LessOrEqual(t, len(srv.Requests()), 10)
}

func TestUploadLazyCancelledContext(t *testing.T) {
	srv := newBackend(t, echoUUID)
	client := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	objs, _ := employees(2)
	results, err := client.Upload(ctx, objs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
