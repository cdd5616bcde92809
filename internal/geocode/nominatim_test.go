package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatim_Search(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"20.6","lon":"72.6","display_name":"Main St"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "relief-test/1.0", time.Second)
	c, err := n.Search(context.Background(), "Main St")

	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 20.6, c.Latitude)
	assert.Equal(t, 72.6, c.Longitude)
	assert.Equal(t, "relief-test/1.0", gotUA)
	assert.Equal(t, "Main St", gotQuery)
}

func TestNominatim_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewNominatim(srv.URL, "ua", time.Second).Search(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNominatim_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{name: "server error", status: http.StatusServiceUnavailable, transient: true},
		{name: "throttled", status: http.StatusTooManyRequests, transient: true},
		{name: "bad request", status: http.StatusBadRequest, transient: false},
		{name: "forbidden", status: http.StatusForbidden, transient: false},
		{name: "malformed body", status: http.StatusOK, body: `{not json`, transient: false},
		{name: "non-numeric lat", status: http.StatusOK, body: `[{"lat":"north","lon":"1"}]`, transient: false},
		{name: "non-finite lat", status: http.StatusOK, body: `[{"lat":"NaN","lon":"1"}]`, transient: false},
		{name: "lat out of range", status: http.StatusOK, body: `[{"lat":"91","lon":"1"}]`, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewNominatim(srv.URL, "ua", time.Second).Search(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestNominatim_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewNominatim(srv.URL, "ua", 20*time.Millisecond).Search(context.Background(), "slow")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
