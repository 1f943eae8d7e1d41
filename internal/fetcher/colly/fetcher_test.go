package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "full https", raw: "https://example.org/page", want: "https://example.org/page"},
		{name: "full http", raw: "http://example.org", want: "http://example.org"},
		{name: "protocol relative", raw: "//example.org/x", want: "https://example.org/x"},
		{name: "bare hostname", raw: "example.org/contact", want: "https://example.org/contact"},
		{name: "bare hostname no path", raw: "example.org", want: "https://example.org"},
		{name: "surrounding whitespace", raw: "  example.org  ", want: "https://example.org"},
		{name: "empty", raw: "", wantErr: true},
		{name: "not a host", raw: "jane doe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>jane@example.org</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "enricher-test/1.0"})
	res, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(res.Body), "jane@example.org")
	require.Contains(t, res.ContentType, "text/html")
}

func TestFetchRejectsBinaryContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	_, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported content type")
}

func TestFetchInvalidURL(t *testing.T) {
	f := New(Config{})
	_, err := f.Fetch(context.Background(), "not a url", time.Second)
	require.Error(t, err)
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := New(Config{})
	start := time.Now()
	_, err := f.Fetch(ctx, srv.URL, 30*time.Second)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	_, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	require.Error(t, err)
}
