package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		b    Build
		want string
	}{
		{"all fields", Build{Version: "v1.2.3", Commit: "abc1234", Date: "2026-01-15"}, "v1.2.3 (commit: abc1234, built: 2026-01-15)"},
		{"empty", Build{}, "dev (commit: unknown, built: unknown)"},
		{"only commit", Build{Commit: "def5678"}, "dev (commit: def5678, built: unknown)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.b.String())
		})
	}
}

func TestCanonical(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"v1.2.3", "v1.2.3"},
		{"1.2.3", "v1.2.3"},
		{"1.2", "v1.2.0"},
		{" v2.0.0-rc1 ", "v2.0.0-rc1"},
		{"dev", ""},
		{"", ""},
		{"abc1234", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestIsNewer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		current, latest string
		want            bool
	}{
		{"newer patch", "v1.0.0", "v1.0.1", true},
		{"same", "v1.0.0", "1.0.0", false},
		{"older", "v2.0.0", "v1.9.9", false},
		{"release beats prerelease", "v1.0.0-rc1", "v1.0.0", true},
		{"dev build", "dev", "v0.1.0", true},
		{"latest not a release", "v1.0.0", "nightly", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsNewer(tt.current, tt.latest))
		})
	}
}

func TestChecker_Latest(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotAgent string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAgent = r.Header.Get("User-Agent")
			_, _ = w.Write([]byte(`{"tag_name":"v0.3.0","html_url":"https://example.com/r","published_at":"2026-02-01T00:00:00Z"}`))
		}))
		defer srv.Close()

		rel, err := NewChecker("v0.2.0", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client())).Latest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v0.3.0", rel.TagName)
		assert.Equal(t, "/repos/mrz1836/cadena/releases/latest", gotPath)
		assert.Contains(t, gotAgent, "cadena/v0.2.0")
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := NewChecker("", WithBaseURL(srv.URL)).Latest(context.Background())
		require.ErrorIs(t, err, ErrReleaseLookup)
		assert.Contains(t, err.Error(), "403")
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("bad body", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		_, err := NewChecker("", WithBaseURL(srv.URL)).Latest(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding release")
	})
}
