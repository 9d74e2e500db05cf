package config

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner/runnertest"
)

const minimalProfile = "metadata:\n  name: minimal\napt_packages:\n  - name: git\n"

// stubFetcher returns canned data and counts calls.
type stubFetcher struct {
	data  string
	err   error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.data), nil
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return &Resolver{
		Root:     t.TempDir(),
		StateDir: filepath.Join(t.TempDir(), "state"),
		Logger:   zerolog.Nop(),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalPath(t *testing.T) {
	r := &Resolver{Root: "/opt/devbox"}

	tests := []struct {
		ref  string
		want string
	}{
		{"/etc/devbox/dev.yaml", "/etc/devbox/dev.yaml"},
		{"minimal.yaml", "/opt/devbox/profiles/minimal.yaml"},
		{"minimal.YML", "/opt/devbox/profiles/minimal.YML"},
		{"profiles/minimal.yaml", "/opt/devbox/profiles/minimal.yaml"},
		{"custom/dev.yaml", "/opt/devbox/custom/dev.yaml"},
		{"config.json", "/opt/devbox/config.json"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if got := r.LocalPath(tt.ref); got != tt.want {
				t.Errorf("LocalPath(%q) = %s, want %s", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolveBareProfileName(t *testing.T) {
	r := newTestResolver(t)
	writeFile(t, filepath.Join(r.Root, ProfilesDir, "minimal.yaml"), minimalProfile)

	res, err := r.Resolve(context.Background(), "minimal.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Kind != SourceFile {
		t.Errorf("kind = %s", res.Kind)
	}
	if res.Path != filepath.Join(r.StateDir, MaterializedName) {
		t.Errorf("materialized at %s", res.Path)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil || string(data) != minimalProfile {
		t.Errorf("materialized copy differs: %q, %v", data, err)
	}
	if res.Config.Metadata.Name != "minimal" {
		t.Errorf("config name = %q", res.Config.Metadata.Name)
	}
}

func TestResolveOverwritesMaterializedCopy(t *testing.T) {
	r := newTestResolver(t)
	writeFile(t, filepath.Join(r.StateDir, MaterializedName), "stale: true\n")
	abs := filepath.Join(t.TempDir(), "dev.yaml")
	writeFile(t, abs, minimalProfile)

	if _, err := r.Resolve(context.Background(), abs); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(r.StateDir, MaterializedName))
	if string(data) != minimalProfile {
		t.Errorf("stale copy not overwritten: %q", data)
	}

	entries, _ := os.ReadDir(r.StateDir)
	if len(entries) != 1 {
		t.Errorf("staging files left behind: %v", entries)
	}
}

func TestResolveRootRelative(t *testing.T) {
	r := newTestResolver(t)
	writeFile(t, filepath.Join(r.Root, "team", "dev.yaml"), minimalProfile)

	res, err := r.Resolve(context.Background(), "team/dev.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != filepath.Join(r.Root, "team", "dev.yaml") {
		t.Errorf("source = %s", res.Source)
	}
}

func TestResolveHTTPS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/dev.yaml" {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte(minimalProfile))
	}))
	defer srv.Close()

	r := newTestResolver(t)
	r.HTTP = &HTTPFetcher{Client: srv.Client()}

	res, err := r.Resolve(context.Background(), srv.URL+"/dev.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != SourceHTTPS || res.Config.Metadata.Name != "minimal" {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = r.Resolve(context.Background(), srv.URL+"/missing.yaml")
	if !engine.IsConfigResolution(err) {
		t.Fatalf("expected CONFIG_RESOLUTION on 404, got %v", err)
	}
}

func TestResolveHTTPSFallback(t *testing.T) {
	tests := []struct {
		name      string
		primary   *stubFetcher
		fallback  *stubFetcher
		wantErr   bool
		wantCalls int
	}{
		{"primary ok", &stubFetcher{data: minimalProfile}, &stubFetcher{data: minimalProfile}, false, 0},
		{"fallback ok", &stubFetcher{err: errors.New("tls")}, &stubFetcher{data: minimalProfile}, false, 1},
		{"both fail", &stubFetcher{err: errors.New("tls")}, &stubFetcher{err: errors.New("curl 22")}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t)
			r.HTTP, r.Fallback = tt.primary, tt.fallback

			_, err := r.Resolve(context.Background(), "https://example.com/dev.yaml")
			if tt.wantErr {
				if !engine.IsConfigResolution(err) {
					t.Fatalf("expected CONFIG_RESOLUTION, got %v", err)
				}
				if !strings.Contains(err.Error(), "curl 22") {
					t.Errorf("both transport errors should be reported: %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.fallback.calls != tt.wantCalls {
				t.Errorf("fallback called %d times, want %d", tt.fallback.calls, tt.wantCalls)
			}
		})
	}
}

func TestResolveCurlFallback(t *testing.T) {
	fake := runnertest.New()
	fake.SetPath("curl", "/usr/bin/curl")
	fake.On("curl -fsSL", runnertest.OK(minimalProfile))

	r := newTestResolver(t)
	r.HTTP = &stubFetcher{err: errors.New("proxy")}
	r.Fallback = &CurlFetcher{Runner: fake, Timeout: time.Minute}

	if _, err := r.Resolve(context.Background(), "https://example.com/dev.yaml"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.Ran("curl -fsSL --max-filesize") {
		t.Errorf("curl not invoked: %v", fake.Lines())
	}
}

func TestCurlFetcherFailures(t *testing.T) {
	t.Run("no curl", func(t *testing.T) {
		f := &CurlFetcher{Runner: runnertest.New()}
		if _, err := f.Fetch(context.Background(), "https://x"); err == nil || !strings.Contains(err.Error(), "curl not available") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		fake := runnertest.New()
		fake.SetPath("curl", "/usr/bin/curl")
		fake.On("curl", runnertest.Exit(22, "404"))
		f := &CurlFetcher{Runner: fake}
		if _, err := f.Fetch(context.Background(), "https://x"); err == nil || !strings.Contains(err.Error(), "code 22") {
			t.Fatalf("got %v", err)
		}
	})
}

func TestResolveSFTP(t *testing.T) {
	r := newTestResolver(t)
	sftp := &stubFetcher{data: minimalProfile}
	r.SFTP = sftp

	res, err := r.Resolve(context.Background(), "sftp://files.example.com/dev.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != SourceSFTP || sftp.calls != 1 {
		t.Errorf("kind=%s calls=%d", res.Kind, sftp.calls)
	}

	r.SFTP = nil
	if _, err := r.Resolve(context.Background(), "sftp://files.example.com/dev.yaml"); !engine.IsConfigResolution(err) {
		t.Fatalf("expected CONFIG_RESOLUTION without transport, got %v", err)
	}
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, r *Resolver) string
		wantErr string
	}{
		{
			name:    "empty ref",
			setup:   func(t *testing.T, r *Resolver) string { return " " },
			wantErr: "empty profile reference",
		},
		{
			name:    "missing bare profile",
			setup:   func(t *testing.T, r *Resolver) string { return "nope.yaml" },
			wantErr: "does not exist",
		},
		{
			name: "directory",
			setup: func(t *testing.T, r *Resolver) string {
				_ = os.MkdirAll(filepath.Join(r.Root, "dir.yaml"), 0o755)
				return filepath.Join(r.Root, "dir.yaml")
			},
			wantErr: "is a directory",
		},
		{
			name: "invalid profile",
			setup: func(t *testing.T, r *Resolver) string {
				writeFile(t, filepath.Join(r.Root, ProfilesDir, "bad.yaml"), "apt_packages:\n  - name: git\n  - name: git\n")
				return "bad.yaml"
			},
			wantErr: "duplicate entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t)
			ref := tt.setup(t, r)

			_, err := r.Resolve(context.Background(), ref)
			if !engine.IsConfigResolution(err) {
				t.Fatalf("expected CONFIG_RESOLUTION, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestInvalidProfileKeepsValidationCode(t *testing.T) {
	r := newTestResolver(t)
	writeFile(t, filepath.Join(r.Root, ProfilesDir, "bad.yaml"), "settings:\n  max_retries: 99\n")

	_, err := r.Resolve(context.Background(), "bad.yaml")
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if ee.Details["cause_code"] != engine.ErrCodeValidation {
		t.Errorf("cause_code = %v", ee.Details["cause_code"])
	}
}
