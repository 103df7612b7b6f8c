package cadastral

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleep struct {
	calls atomic.Int32
	last  time.Duration
}

func (s *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	s.calls.Add(1)
	s.last = d
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cache Cache) (*Client, *recordedSleep) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sleeper := &recordedSleep{}
	return NewClient(Options{
		DawaBaseURL: srv.URL,
		OisBaseURL:  srv.URL,
		Timeout:     2 * time.Second,
		Delay:       time.Second,
		Cache:       cache,
		Sleep:       sleeper.sleep,
	}), sleeper
}

func TestPropertyID_FirstResult(t *testing.T) {
	t.Parallel()

	var gotQuery string
	c, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jordstykker/autocomplete", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("per_side"))
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"tekst":"12a, Hee By, Hee","jordstykke":{"sfeejendomsnr":"2345678"}},
			{"tekst":"12b, Hee By, Hee","jordstykke":{"sfeejendomsnr":"9999"}}
		]`))
	}, nil)

	id, err := c.PropertyID(context.Background(), "Hee By, Hee", "12a")
	require.NoError(t, err)
	require.Equal(t, "2345678", id)
	require.Equal(t, "12a, Hee By, Hee", gotQuery)
	require.EqualValues(t, 1, sleeper.calls.Load())
	require.Equal(t, time.Second, sleeper.last)
}

func TestPropertyID_NumericID(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"tekst":"1","jordstykke":{"sfeejendomsnr":100200}}]`))
	}, nil)

	id, err := c.PropertyID(context.Background(), "District", "1")
	require.NoError(t, err)
	require.Equal(t, "100200", id)
}

func TestPropertyID_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				require.Equal(t, http.StatusInternalServerError, se.Code)
			},
		},
		{
			name: "empty list",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrNoMatch) },
		},
		{
			name: "missing id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"tekst":"x","jordstykke":{}}]`))
			},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrNoMatch) },
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
			check: func(t *testing.T, err error) { require.Error(t, err) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, sleeper := newTestClient(t, tc.handler, nil)
			_, err := c.PropertyID(context.Background(), "District", "1")
			tc.check(t, err)
			require.EqualValues(t, 1, sleeper.calls.Load(), "pause applies after failed lookups too")
		})
	}
}

func TestPropertyID_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(Options{
		DawaBaseURL: srv.URL,
		Timeout:     50 * time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
	_, err := c.PropertyID(context.Background(), "District", "1")
	require.Error(t, err)
}

func TestPropertyID_CacheSkipsRequestAndPause(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[{"tekst":"x","jordstykke":{"sfeejendomsnr":"42"}}]`))
	}, NewMemoryCache())

	for i := 0; i < 3; i++ {
		id, err := c.PropertyID(context.Background(), "District", "7")
		require.NoError(t, err)
		require.Equal(t, "42", id)
	}
	require.EqualValues(t, 1, hits.Load())
	require.EqualValues(t, 1, sleeper.calls.Load())
}

func TestOwnerName(t *testing.T) {
	t.Parallel()

	c, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ejer/get", r.URL.Path)
		switch r.URL.Query().Get("bfe") {
		case "1":
			_, _ = w.Write([]byte(`{"bfe":1,"ejerdata":[{"name":"Vindpark Nord ApS"},{"name":"Other"}]}`))
		case "2":
			_, _ = w.Write([]byte(`{"bfe":2,"ejerdata":[]}`))
		case "4":
			_, _ = w.Write([]byte(`{"bfe":4,"ejerdata":[{"name":"  "},{"name":"Second Owner A/S"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, nil)

	name, err := c.OwnerName(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "Vindpark Nord ApS", name)

	_, err = c.OwnerName(context.Background(), "2")
	require.ErrorIs(t, err, ErrNoOwner)

	_, err = c.OwnerName(context.Background(), "4")
	require.ErrorIs(t, err, ErrNoOwner, "only the first owner entry counts")

	_, err = c.OwnerName(context.Background(), "3")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "ois", se.Service)

	require.EqualValues(t, 0, sleeper.calls.Load(), "owner lookups are not paced")
}

func TestSleepCtx_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleepCtx(context.Background(), 0))
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	v, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}
