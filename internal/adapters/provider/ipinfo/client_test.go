package ipinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"messenger-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/8.8.8.8/json", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"ip":"8.8.8.8","city":"Mountain View","region":"California"}`))
	}))
	defer srv.Close()

	loc, err := New(srv.URL, "key").Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	assert.Equal(t, "Mountain View", loc.City)
	assert.Equal(t, "California", loc.Region)
	assert.JSONEq(t, `{"ip":"8.8.8.8","city":"Mountain View","region":"California"}`, string(loc.Raw))
}

func TestLookup_OwnIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json", r.URL.Path)
		_, _ = w.Write([]byte(`{"ip":"1.1.1.1"}`))
	}))
	defer srv.Close()

	loc, err := New(srv.URL, "key").Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, loc.Place())
}

func TestLookup_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "key").Lookup(context.Background(), "8.8.8.8")
	var upstream *domain.UpstreamStatusError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Equal(t, "ipinfo", upstream.Service)
}
