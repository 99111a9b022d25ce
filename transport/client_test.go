package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2thetop/scalar/errors"
	"github.com/2thetop/scalar/transport"
)

const objectID = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

func TestDownloadLooseObject(t *testing.T) {
	t.Run("returns body on success", func(t *testing.T) {
		var gotPath, gotAuth, gotAccept string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			gotAccept = r.Header.Get("Accept")
			_, _ = w.Write([]byte("compressed-bytes"))
		}))
		defer srv.Close()

		client := transport.New(srv.URL, transport.WithAuthToken("s3cret"))
		body, err := client.DownloadLooseObject(context.Background(), objectID)
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "compressed-bytes", string(data))
		assert.Equal(t, "/gvfs/objects/"+objectID, gotPath)
		assert.Equal(t, "Bearer s3cret", gotAuth)
		assert.Equal(t, "application/x-git-loose-object", gotAccept)
	})

	t.Run("prefers cache server", func(t *testing.T) {
		var originHits, cacheHits atomic.Int32
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			originHits.Add(1)
		}))
		defer origin.Close()
		cache := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cacheHits.Add(1)
		}))
		defer cache.Close()

		client := transport.New(origin.URL, transport.WithCacheServer(cache.URL+"/"))
		body, err := client.DownloadLooseObject(context.Background(), objectID)
		require.NoError(t, err)
		_ = body.Close()

		assert.Equal(t, int32(0), originHits.Load())
		assert.Equal(t, int32(1), cacheHits.Load())
		assert.Equal(t, cache.URL, client.ObjectsURL())
	})
}

func TestDownloadLooseObject_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  errors.ErrorCode
		retryable bool
	}{
		{status: http.StatusNotFound, wantCode: errors.CodeNotFound, retryable: false},
		{status: http.StatusUnauthorized, wantCode: errors.CodeUnauthorized, retryable: false},
		{status: http.StatusForbidden, wantCode: errors.CodeForbidden, retryable: false},
		{status: http.StatusTooManyRequests, wantCode: errors.CodeRateLimit, retryable: true},
		{status: http.StatusServiceUnavailable, wantCode: errors.CodeUnavailable, retryable: true},
		{status: http.StatusInternalServerError, wantCode: errors.CodeUnavailable, retryable: true},
		{status: http.StatusGatewayTimeout, wantCode: errors.CodeTimeout, retryable: true},
		{status: http.StatusBadRequest, wantCode: errors.CodeInvalidInput, retryable: false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := transport.New(srv.URL)
			body, err := client.DownloadLooseObject(context.Background(), objectID)
			require.Error(t, err)
			assert.Nil(t, body)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestDownloadLooseObject_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := transport.New(url).DownloadLooseObject(context.Background(), objectID)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNetwork, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestDownloadLooseObject_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := transport.New(srv.URL).DownloadLooseObject(ctx, objectID)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestDownloadLooseObject_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	settings := transport.DefaultBreakerSettings("test")
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 2
	}
	settings.Timeout = time.Hour
	client := transport.New(srv.URL, transport.WithBreakerSettings(settings))

	for i := 0; i < 2; i++ {
		_, err := client.DownloadLooseObject(context.Background(), objectID)
		require.Error(t, err)
	}

	_, err := client.DownloadLooseObject(context.Background(), objectID)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
}

func TestDownloadLooseObject_NotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	settings := transport.DefaultBreakerSettings("test")
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 1
	}
	client := transport.New(srv.URL, transport.WithBreakerSettings(settings))

	for i := 0; i < 3; i++ {
		_, err := client.DownloadLooseObject(context.Background(), objectID)
		assert.True(t, errors.IsNotFound(err))
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestQueryConfig(t *testing.T) {
	t.Run("parses cache servers", func(t *testing.T) {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/gvfs/config", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"AllowedGvfsClientVersions": [{"Min": {"Major": 1, "Minor": 0, "Build": 0, "Revision": 0}, "Max": null}],
				"CacheServers": [
					{"Url": "https://cache-a.example.com", "Name": "a", "GlobalDefault": false},
					{"Url": "https://cache-b.example.com", "Name": "b", "GlobalDefault": true}
				]
			}`))
		}))
		defer origin.Close()

		client := transport.New(origin.URL, transport.WithCacheServer("https://ignored.example.com"))
		cfg, err := client.QueryConfig(context.Background())
		require.NoError(t, err)

		require.Len(t, cfg.CacheServers, 2)
		def, ok := cfg.DefaultCacheServer()
		require.True(t, ok)
		assert.Equal(t, "https://cache-b.example.com", def.URL)
		require.Len(t, cfg.AllowedClientVersions, 1)
		assert.Equal(t, 1, cfg.AllowedClientVersions[0].Min.Major)
		assert.Nil(t, cfg.AllowedClientVersions[0].Max)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer origin.Close()

		_, err := transport.New(origin.URL).QueryConfig(context.Background())
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	})
}
