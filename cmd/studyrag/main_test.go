package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

func TestFlagsFirst(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after text are moved first",
			args:     []string{"what is entropy", "-conversation", "c1"},
			expected: []string{"-conversation", "c1", "what is entropy"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "c1"},
			expected: []string{"-output", "json", "c1"},
		},
		{
			name:     "positional only returns unchanged",
			args:     []string{"notes.pdf"},
			expected: []string{"notes.pdf"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"a.pdf", "b.pdf", "--no-wait"},
			expected: []string{"--no-wait", "a.pdf", "b.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flagsFirst(tt.args); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("flagsFirst() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func isolateUserConfig(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("STUDYRAG_API_URL", "")
	t.Setenv("STUDYRAG_WS_URL", "")
	t.Setenv("STUDYRAG_DEBUG", "")
}

func TestLoadConfig_prefersCwdConfig(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	content := "debug: true\nserver:\n  api_base_url: http://example.test:9000\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "config.yaml" {
		t.Errorf("resolved path = %q, want config.yaml", resolved)
	}
	if !cfg.Debug || cfg.Server.APIBaseURL != "http://example.test:9000" {
		t.Errorf("unexpected config: debug=%v api=%s", cfg.Debug, cfg.Server.APIBaseURL)
	}
}

func TestLoadConfig_defaultsWithoutFile(t *testing.T) {
	isolateUserConfig(t)
	chdir(t, t.TempDir())

	cfg, resolved, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want none", resolved)
	}
	if cfg.Server.APIBaseURL != "http://localhost:8000" {
		t.Errorf("api = %s", cfg.Server.APIBaseURL)
	}
}

func TestLoadConfig_explicitPath(t *testing.T) {
	isolateUserConfig(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  ws_base_url: wss://example.test\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path || cfg.Server.WSBaseURL != "wss://example.test" {
		t.Errorf("resolved=%s ws=%s", resolved, cfg.Server.WSBaseURL)
	}

	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestRun_builtins(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"version"}, nil, &out, &errOut); code != 0 || !strings.Contains(out.String(), "studyrag version") {
		t.Errorf("version: code=%d out=%q", code, out.String())
	}
	out.Reset()
	if code := run([]string{"help"}, nil, &out, &errOut); code != 0 || !strings.Contains(out.String(), "Usage:") {
		t.Errorf("help: code=%d", code)
	}
	errOut.Reset()
	if code := run([]string{"frobnicate"}, nil, &out, &errOut); code != 1 || !strings.Contains(errOut.String(), "Unknown command: frobnicate") {
		t.Errorf("unknown: code=%d err=%q", code, errOut.String())
	}
	errOut.Reset()
	if code := run([]string{"conversations", "show"}, nil, &out, &errOut); code != 1 || !strings.Contains(errOut.String(), "Usage:") {
		t.Errorf("missing arg: code=%d err=%q", code, errOut.String())
	}
}

// backendConfig writes a config pointing at srv with the push channel off.
func backendConfig(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	isolateUserConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  api_base_url: " + srv.URL + "\n  ws_base_url: ws://127.0.0.1:1\nrealtime:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_healthAndDocuments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.HealthResponse{Status: "healthy"})
	})
	mux.HandleFunc("/api/v1/database/documents", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "completed" {
			http.Error(w, `{"detail":"unexpected filter"}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.DocumentList{
			Documents:  []models.Document{{ID: "d1", Filename: "notes.pdf", Status: models.StatusCompleted, ChunkCount: 3}},
			Pagination: models.Pagination{Total: 1, Limit: 20, Page: 1},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	cfgPath := backendConfig(t, srv)

	var out, errOut bytes.Buffer
	if code := run([]string{"health", "--config", cfgPath}, nil, &out, &errOut); code != 0 {
		t.Fatalf("health: code=%d err=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "healthy") {
		t.Errorf("health output: %q", out.String())
	}

	out.Reset()
	args := []string{"documents", "list", "--config", cfgPath, "--status", "completed", "--output", "json"}
	if code := run(args, nil, &out, &errOut); code != 0 {
		t.Fatalf("documents list: code=%d err=%s", code, errOut.String())
	}
	var decoded struct {
		Documents []models.Document `json:"documents"`
		Total     int               `json:"total"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if decoded.Total != 1 || len(decoded.Documents) != 1 || decoded.Documents[0].ChunkCount != 3 {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestRun_failurePrintsOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"maintenance"}`))
	}))
	defer srv.Close()
	cfgPath := backendConfig(t, srv)

	var out, errOut bytes.Buffer
	if code := run([]string{"health", "--config", cfgPath}, nil, &out, &errOut); code != 1 {
		t.Fatalf("code = %d", code)
	}
	if !strings.HasPrefix(errOut.String(), "health failed: ") || !strings.Contains(errOut.String(), "maintenance") {
		t.Errorf("stderr = %q", errOut.String())
	}
}
