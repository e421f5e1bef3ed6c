package weatherapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"messenger-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/current.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Ho Chi Minh", q.Get("q"))
		assert.Equal(t, "vi", q.Get("lang"))
		assert.Equal(t, "key", q.Get("key"))
		_, _ = w.Write([]byte(`{"location":{"name":"Ho Chi Minh"},"current":{"temp_c":33.2,"condition":{"text":"Có mây","icon":"//cdn.weatherapi.com/116.png"}}}`))
	}))
	defer srv.Close()

	cond, err := New(srv.URL, "key").Current(context.Background(), "Ho Chi Minh", "vi")
	require.NoError(t, err)
	require.NotNil(t, cond)

	require.NotNil(t, cond.TempC)
	assert.InDelta(t, 33.2, *cond.TempC, 0.001)
	assert.Equal(t, "Có mây", cond.Text)
	assert.Equal(t, "//cdn.weatherapi.com/116.png", cond.IconURL)
}

func TestCurrent_NoCurrentBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"location":{"name":"Nowhere"}}`))
	}))
	defer srv.Close()

	cond, err := New(srv.URL, "key").Current(context.Background(), "Nowhere", "vi")
	require.NoError(t, err)
	assert.Nil(t, cond)
}

func TestCurrent_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":1006,"message":"No matching location found."}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "key").Current(context.Background(), "??", "vi")
	var upstream *domain.UpstreamStatusError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "1006")
}
