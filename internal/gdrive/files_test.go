package gdrive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListChildren_FirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "'folder-1' in parents and trashed = false", q.Get("q"))
		assert.Equal(t, listFields, q.Get("fields"))
		assert.Equal(t, "1000", q.Get("pageSize"))
		assert.Empty(t, q.Get("pageToken"))

		fmt.Fprint(w, `{
			"nextPageToken": "tok-2",
			"files": [
				{"id": "f1", "name": "report.pdf", "mimeType": "application/pdf", "size": "2048"},
				{"id": "d1", "name": "Photos", "mimeType": "application/vnd.google-apps.folder"}
			]
		}`)
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL).ListChildren(context.Background(), "folder-1", "")
	require.NoError(t, err)

	assert.Equal(t, "tok-2", page.NextPageToken)
	require.Len(t, page.Files, 2)

	assert.Equal(t, File{ID: "f1", Name: "report.pdf", MimeType: "application/pdf", Size: 2048}, page.Files[0])
	assert.True(t, page.Files[1].IsFolder)
	assert.Equal(t, int64(SizeUnknown), page.Files[1].Size)
}

func TestListChildren_PassesPageToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-2", r.URL.Query().Get("pageToken"))
		fmt.Fprint(w, `{"files": []}`)
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL).ListChildren(context.Background(), "folder-1", "tok-2")
	require.NoError(t, err)
	assert.Empty(t, page.Files)
	assert.Empty(t, page.NextPageToken)
}

func TestListChildren_InvalidSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"files": [{"id": "f1", "name": "x", "mimeType": "text/plain", "size": "lots"}]}`)
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL).ListChildren(context.Background(), "root", "")
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, int64(SizeUnknown), page.Files[0].Size)
}

func TestListChildren_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"File not found: nope.","errors":[{"reason":"notFound"}]}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListChildren(context.Background(), "nope", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChildren_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"files": [`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListChildren(context.Background(), "root", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding file list response")
}

func TestChildrenQuery_Escaping(t *testing.T) {
	assert.Equal(t, `'a\'b\\c' in parents and trashed = false`, childrenQuery(`a'b\c`))
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/about", r.URL.Path)
		fmt.Fprint(w, `{"user": {"displayName": "Alice", "emailAddress": "alice@example.com"}}`)
	}))
	defer srv.Close()

	user, err := newTestClient(t, srv.URL).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestReferenceURL(t *testing.T) {
	assert.Equal(t, "https://drive.google.com/file/d/abc123/view?usp=drive_link", ReferenceURL("abc123"))
	assert.Equal(t, ReferenceURL("abc123"), ReferenceURL("abc123"))
}
