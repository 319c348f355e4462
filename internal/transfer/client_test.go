package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a Client against srv with a token endpoint mounted on
// the same server under /oauth/token.
func newTestClient(srv *httptest.Server, pageSize int) *Client {
	tokens := NewTokenCache(srv.URL+"/oauth/token", "cid", "secret", srv.Client(), zerolog.Nop())
	return NewClient(srv.URL, tokens, srv.Client(), pageSize)
}

func serveToken(w http.ResponseWriter) {
	fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
}

func TestClient_ListJobsFollowsPagination(t *testing.T) {
	total := 5
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			serveToken(w)
			return
		}
		require.Equal(t, "/jobs", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		page := RawJobPage{TotalCount: total, Offset: offset, Limit: limit}
		for i := offset; i < total && i < offset+limit; i++ {
			page.Items = append(page.Items, RawJob{JobID: fmt.Sprintf("job-%d", i)})
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := newTestClient(srv, 2)
	jobs, err := client.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, total)
	assert.Equal(t, "job-0", jobs[0].JobID)
	assert.Equal(t, "job-4", jobs[4].JobID)
}

func TestClient_ActiveTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			serveToken(w)
			return
		}
		require.Equal(t, "/jobs/job-1/transfers", r.URL.Path)
		require.Equal(t, "IN_PROGRESS", r.URL.Query().Get("state"))
		json.NewEncoder(w).Encode(RawTransferPage{Items: []RawTransfer{{
			JobID:       "job-1",
			Transferred: RawCounter{Count: 3},
			Remaining:   RawCounter{Count: 1},
		}}})
	}))
	defer srv.Close()

	client := newTestClient(srv, 100)
	detail, err := client.ActiveTransfer(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, int64(3), detail.Transferred.Count)
}

func TestClient_ActiveTransferNoneRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			serveToken(w)
			return
		}
		json.NewEncoder(w).Encode(RawTransferPage{})
	}))
	defer srv.Close()

	client := newTestClient(srv, 100)
	detail, err := client.ActiveTransfer(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestClient_UpstreamErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			serveToken(w)
			return
		}
		http.Error(w, "job gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv, 100)
	_, err := client.ActiveTransfer(context.Background(), "job-9")
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "job-9", upstreamErr.JobID)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
	assert.Contains(t, upstreamErr.Body, "job gone")
}

func TestClient_PauseResumeAndDelete(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			serveToken(w)
			return
		}
		gotMethod, gotPath = r.Method, r.URL.Path
		var buf [64]byte
		n, _ := r.Body.Read(buf[:])
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(srv, 100)

	require.NoError(t, client.SetPaused(context.Background(), "job-1", true))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/jobs/job-1", gotPath)
	assert.JSONEq(t, `{"paused":true}`, gotBody)

	require.NoError(t, client.StartDelivery(context.Background(), "job-1"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/jobs/job-1/deliveries", gotPath)

	require.NoError(t, client.DeleteJob(context.Background(), "job-1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/jobs/job-1", gotPath)
}

func TestClient_AuthErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		t.Error("API endpoint reached without a token")
	}))
	defer srv.Close()

	client := newTestClient(srv, 100)
	_, err := client.ListJobs(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)
}
