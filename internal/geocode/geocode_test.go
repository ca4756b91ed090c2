package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nominatim(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "sleepystop-test", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClientResolve(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    Place
		wantErr error
	}{
		{
			name:   "found",
			status: http.StatusOK,
			body:   `[{"lat":"52.5200066","lon":"13.404954","display_name":"Berlin, Deutschland"}]`,
			want:   Place{DisplayName: "Berlin, Deutschland"},
		},
		{name: "empty result", status: http.StatusOK, body: `[]`, wantErr: ErrNotFound},
		{name: "bad lat", status: http.StatusOK, body: `[{"lat":"north","lon":"13.4"}]`, wantErr: ErrLookupFailed},
		{name: "out of range", status: http.StatusOK, body: `[{"lat":"95","lon":"13.4"}]`, wantErr: ErrLookupFailed},
		{name: "upstream error", status: http.StatusBadGateway, body: `oops`, wantErr: ErrLookupFailed},
		{name: "garbage", status: http.StatusOK, body: `{`, wantErr: ErrLookupFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := nominatim(t, tt.status, tt.body)
			c := NewClient(srv.URL, "sleepystop-test", time.Second)

			got, err := c.Resolve(context.Background(), "Berlin")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.DisplayName, got.DisplayName)
			assert.InDelta(t, 52.5200066, got.Lat, 1e-9)
			assert.InDelta(t, 13.404954, got.Lon, 1e-9)
		})
	}
}

func TestClientResolveEmptyPlace(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", time.Second)
	_, err := c.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedResolve(t *testing.T) {
	srv, calls := nominatim(t, http.StatusOK, `[{"lat":"48.8566","lon":"2.3522","display_name":"Paris"}]`)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var outcomes []string
	c := NewCached(NewClient(srv.URL, "sleepystop-test", time.Second), rdb, time.Hour, func(o string) {
		outcomes = append(outcomes, o)
	})

	ctx := context.Background()
	first, err := c.Resolve(ctx, "Paris")
	require.NoError(t, err)
	second, err := c.Resolve(ctx, "  paris ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, []string{"miss", "hit"}, outcomes)
	assert.True(t, mr.Exists("geocode:paris"))
	assert.Equal(t, time.Hour, mr.TTL("geocode:paris"))
}

func TestCachedDoesNotStoreMisses(t *testing.T) {
	srv, calls := nominatim(t, http.StatusOK, `[]`)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewCached(NewClient(srv.URL, "sleepystop-test", time.Second), rdb, time.Hour, nil)
	for i := 0; i < 2; i++ {
		_, err := c.Resolve(context.Background(), "Atlantis")
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 2, *calls)
	assert.False(t, mr.Exists("geocode:atlantis"))
}

func TestCachedWithoutRedis(t *testing.T) {
	srv, calls := nominatim(t, http.StatusOK, `[{"lat":"1","lon":"2"}]`)
	c := NewCached(NewClient(srv.URL, "sleepystop-test", time.Second), nil, time.Hour, nil)
	_, err := c.Resolve(context.Background(), "x")
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
}
