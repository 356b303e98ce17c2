package splitsio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/splitkeeper/go/clients"
	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
)

func newTestClient(t *testing.T, handler http.Handler) (*SplitsIOClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewSplitsIOClient(srv.URL + "/")
	c.SetHTTPClient(srv.Client())
	return c, srv
}

func TestUploadLss(t *testing.T) {
	lss := []byte("<Run version=\"1.7.0\"></Run>")
	var uploaded []byte
	var fields map[string]string

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/api/v4/runs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "abc",
			"claim_token": "tok",
			"uris": map[string]string{
				"api_uri":    srvURL + "/api/v4/runs/abc",
				"public_uri": srvURL + "/abc",
				"claim_uri":  srvURL + "/abc?claim_token=tok",
			},
			"presigned_request": map[string]any{
				"method": "POST",
				"uri":    srvURL + "/upload",
				"fields": map[string]string{"key": "splits/abc", "policy": "p"},
			},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{
			"key":    r.FormValue("key"),
			"policy": r.FormValue("policy"),
		}
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		uploaded, err = io.ReadAll(f)
		require.NoError(t, err)
		w.WriteHeader(http.StatusNoContent)
	})

	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	claim, err := c.UploadLss(context.Background(), lss)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/abc?claim_token=tok", claim)
	assert.Equal(t, lss, uploaded)
	assert.Equal(t, map[string]string{"key": "splits/abc", "policy": "p"}, fields)
}

func TestUploadLssCreateFails(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))

	_, err := c.UploadLss(context.Background(), []byte("x"))
	var statusErr *clients.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestDownloadByID(t *testing.T) {
	run := models.DefaultRun()
	run.GameName = "Celeste"
	blob, err := runcodec.SaveAsBytes(run)
	require.NoError(t, err)

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/runs/abc":
			assert.Equal(t, OriginalTimerContentType, r.Header.Get("Accept"))
			_, _ = w.Write(blob)
		case "/api/v4/runs/junk":
			_, _ = w.Write([]byte("definitely not splits"))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	got, err := c.DownloadByID(ctx, "https://splits.io/abc")
	require.NoError(t, err)
	assert.Equal(t, "Celeste", got.GameName)
	assert.Equal(t, 1, got.Len())

	_, err = c.DownloadByID(ctx, "junk")
	assert.ErrorIs(t, err, ErrInvalidRun)

	_, err = c.DownloadByID(ctx, "missing")
	var statusErr *clients.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = c.DownloadByID(ctx, "  ")
	assert.Error(t, err)
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "abc", NormalizeID("abc"))
	assert.Equal(t, "abc", NormalizeID(" https://splits.io/abc/ "))
	assert.Equal(t, "abc", NormalizeID("splits.io/abc"))
}
