package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivescan/internal/gdrive"
	"github.com/tonimelisma/drivescan/internal/results"
	"github.com/tonimelisma/drivescan/internal/scan"
	"github.com/tonimelisma/drivescan/internal/walk"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeJobs answers each call from canned values.
type fakeJobs struct {
	mu        sync.Mutex
	submitted []string

	submitErr error
	snap      scan.Snapshot
	statusErr error
	body      string
	resultErr error
	deleteErr error
	updates   chan scan.Snapshot
	subErr    error
	canceled  bool
}

func (f *fakeJobs) Submit(_ context.Context, rootID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return "", f.submitErr
	}

	f.submitted = append(f.submitted, rootID)

	return "job-1", nil
}

func (f *fakeJobs) Status(context.Context, string) (scan.Snapshot, error) {
	return f.snap, f.statusErr
}

func (f *fakeJobs) Result(context.Context, string) (io.ReadCloser, error) {
	if f.resultErr != nil {
		return nil, f.resultErr
	}

	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeJobs) Delete(context.Context, string) error {
	return f.deleteErr
}

func (f *fakeJobs) Subscribe(context.Context, string) (<-chan scan.Snapshot, func(), error) {
	if f.subErr != nil {
		return nil, nil, f.subErr
	}

	return f.updates, func() {
		f.mu.Lock()
		f.canceled = true
		f.mu.Unlock()
	}, nil
}

type fakeAuth struct {
	state, code string
	err         error
}

func (f *fakeAuth) CompleteAuthorization(_ context.Context, state, code string) error {
	f.state, f.code = state, code
	return f.err
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body["error"]
}

func TestStartScan(t *testing.T) {
	jobs := &fakeJobs{}
	s := New(jobs, nil, Options{}, nil)

	rec := serve(t, s, http.MethodPost, "/api/scan", `{"folder_id":"root-folder"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "Scan started", resp.Message)
	assert.Equal(t, []string{"root-folder"}, jobs.submitted)
}

func TestStartScan_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want string
	}{
		{"malformed json", `{"folder_id":`, nil, "invalid request body"},
		{"missing folder", `{}`, scan.ErrInvalidRoot, msgFolderRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeJobs{submitErr: tt.err}, nil, Options{}, nil)

			rec := serve(t, s, http.MethodPost, "/api/scan", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorBody(t, rec))
		})
	}
}

func TestScanStatus(t *testing.T) {
	n := 3
	jobs := &fakeJobs{snap: scan.Snapshot{
		JobID:      "job-1",
		Status:     scan.StatusCompleted,
		Message:    "Found 3 files and folders",
		Progress:   100,
		EntryCount: &n,
	}}
	s := New(jobs, nil, Options{}, nil)

	rec := serve(t, s, http.MethodGet, "/api/scan/job-1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"job_id":"job-1","status":"completed","message":"Found 3 files and folders","progress":100,"entry_count":3}`,
		rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		jobs   *fakeJobs
		code   int
		msg    string
	}{
		{
			"status unknown job", http.MethodGet, "/api/scan/nope/status",
			&fakeJobs{statusErr: scan.ErrJobNotFound}, http.StatusNotFound, msgJobNotFound,
		},
		{
			"download unknown job", http.MethodGet, "/api/scan/nope/download",
			&fakeJobs{resultErr: scan.ErrJobNotFound}, http.StatusNotFound, msgJobNotFound,
		},
		{
			"download not completed", http.MethodGet, "/api/scan/j/download",
			&fakeJobs{resultErr: scan.ErrNotCompleted}, http.StatusBadRequest, msgNotCompleted,
		},
		{
			"download artifact missing", http.MethodGet, "/api/scan/j/download",
			&fakeJobs{resultErr: errors.Join(errors.New("scan: opening result"), results.ErrNotFound)},
			http.StatusNotFound, msgResultNotFound,
		},
		{
			"delete running job", http.MethodDelete, "/api/scan/j",
			&fakeJobs{deleteErr: scan.ErrStillRunning}, http.StatusConflict, msgStillProcessing,
		},
		{
			"store failure", http.MethodGet, "/api/scan/j/status",
			&fakeJobs{statusErr: errors.New("disk on fire")}, http.StatusInternalServerError, msgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.jobs, nil, Options{}, nil)

			rec := serve(t, s, tt.method, tt.target, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, errorBody(t, rec))
		})
	}
}

func TestDownloadResult(t *testing.T) {
	jobs := &fakeJobs{body: "name,reference,size,kind,path\r\n"}
	s := New(jobs, nil, Options{}, nil)

	rec := serve(t, s, http.MethodGet, "/api/scan/job-1/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="google_drive_scan.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, jobs.body, rec.Body.String())
}

func TestDeleteScan(t *testing.T) {
	s := New(&fakeJobs{}, nil, Options{}, nil)

	rec := serve(t, s, http.MethodDelete, "/api/scan/job-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := New(&fakeJobs{}, nil, Options{}, nil)

	rec := serve(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(&fakeJobs{}, nil, Options{}, nil)

	serve(t, s, http.MethodGet, "/healthz", "")
	rec := serve(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "drivescan_http_requests_total")
}

func TestOAuthCallback(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		code   int
		substr string
	}{
		{"success", "?state=s1&code=c1", nil, http.StatusOK, "Authentication successful"},
		{"provider error", "?error=access_denied", nil, http.StatusBadRequest, "access_denied"},
		{"missing code", "?state=s1", nil, http.StatusBadRequest, "Missing"},
		{"unknown state", "?state=old&code=c1", gdrive.ErrUnknownState, http.StatusBadRequest, "expired"},
		{"exchange failure", "?state=s1&code=c1", errors.New("boom"), http.StatusBadGateway, "Authorization failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{err: tt.err}
			s := New(&fakeJobs{}, auth, Options{}, nil)

			rec := serve(t, s, http.MethodGet, "/oauth/callback"+tt.query, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.substr)
		})
	}
}

func TestOAuthCallback_Passthrough(t *testing.T) {
	auth := &fakeAuth{}
	s := New(&fakeJobs{}, auth, Options{}, nil)

	serve(t, s, http.MethodGet, "/oauth/callback?state=abc&code=xyz", "")
	assert.Equal(t, "abc", auth.state)
	assert.Equal(t, "xyz", auth.code)
}

func TestOAuthCallback_NotConfigured(t *testing.T) {
	s := New(&fakeJobs{}, nil, Options{}, nil)

	rec := serve(t, s, http.MethodGet, "/oauth/callback?state=a&code=b", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryFromPanic(t *testing.T) {
	s := New(&fakeJobs{}, nil, Options{}, nil)
	s.engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := serve(t, s, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, errorBody(t, rec))
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestScanEvents_StreamsUntilTerminal(t *testing.T) {
	updates := make(chan scan.Snapshot, 2)
	jobs := &fakeJobs{updates: updates}
	srv := httptest.NewServer(New(jobs, nil, Options{}, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/scan/job-1/events"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	n := 1
	updates <- scan.Snapshot{JobID: "job-1", Status: scan.StatusProcessing, Message: "Scanning Google Drive", Progress: 10}
	updates <- scan.Snapshot{JobID: "job-1", Status: scan.StatusCompleted, Message: "Found 1 files and folders", Progress: 100, EntryCount: &n}
	close(updates)

	var first, second scan.Snapshot
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))

	assert.Equal(t, scan.StatusProcessing, first.Status)
	assert.Equal(t, 10, first.Progress)
	assert.Equal(t, scan.StatusCompleted, second.Status)
	require.NotNil(t, second.EntryCount)
	assert.Equal(t, 1, *second.EntryCount)

	var extra scan.Snapshot
	err = wsjson.Read(ctx, conn, &extra)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestScanEvents_UnknownJob(t *testing.T) {
	s := New(&fakeJobs{subErr: scan.ErrJobNotFound}, nil, Options{}, nil)

	rec := serve(t, s, http.MethodGet, "/api/scan/nope/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// End to end through the real coordinator.

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

type okCreds struct{}

func (okCreds) Credential(context.Context) (gdrive.TokenSource, error) {
	return staticToken("t"), nil
}

type treeLister map[string][]walk.Node

func (l treeLister) ListPage(_ context.Context, folderID, _ string) (walk.Page, error) {
	return walk.Page{Nodes: l[folderID]}, nil
}

func TestEndToEnd_SubmitPollDownload(t *testing.T) {
	lister := treeLister{
		"root": {
			{ID: "f1", Name: "a.txt", Kind: walk.KindFile, Size: 5, Reference: "ref-f1"},
			{ID: "d1", Name: "docs", Kind: walk.KindFolder, Size: walk.SizeUnknown, Reference: "ref-d1"},
		},
		"d1": {
			{ID: "f2", Name: "b.txt", Kind: walk.KindFile, Size: 7, Reference: "ref-f2"},
		},
	}

	coord := scan.NewCoordinator(scan.Config{
		Store:         scan.NewMemoryStore(),
		Results:       results.NewLocalStore(t.TempDir(), nil),
		Credentials:   okCreds{},
		NewLister:     func(gdrive.TokenSource) walk.Lister { return lister },
		MaxConcurrent: 1,
	})
	s := New(coord, nil, Options{}, nil)

	rec := serve(t, s, http.MethodPost, "/api/scan", `{"folder_id":"root"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var started scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	coord.Wait()

	rec = serve(t, s, http.MethodGet, "/api/scan/"+started.JobID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap scan.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, scan.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)

	rec = serve(t, s, http.MethodGet, "/api/scan/"+started.JobID+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "name,reference,size,kind,path\n"+
		"a.txt,ref-f1,5,file,\n"+
		"docs,ref-d1,,folder,\n"+
		"b.txt,ref-f2,7,file,docs\n", rec.Body.String())

	rec = serve(t, s, http.MethodDelete, "/api/scan/"+started.JobID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, s, http.MethodGet, "/api/scan/"+started.JobID+"/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
