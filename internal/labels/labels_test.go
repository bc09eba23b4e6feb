package labels

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	table, err := Parse([]byte(`{"0": "tench", "1": "goldfish", "999": "toilet tissue"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", table.Len())
	}
	if label, ok := table.Lookup(999); !ok || label != "toilet tissue" {
		t.Errorf("expected toilet tissue, got %q (ok=%v)", label, ok)
	}
	if _, ok := table.Lookup(5); ok {
		t.Error("index 5 should not resolve")
	}
	if _, ok := table.Lookup(-1); ok {
		t.Error("negative index should not resolve")
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":     `not json`,
		"array":        `["a", "b"]`,
		"non-numeric":  `{"cat": "felis"}`,
		"negative":     `{"-1": "nothing"}`,
		"leading zero": `{"01": "goldfish"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFallback(t *testing.T) {
	table := Fallback()
	if table.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", table.Len())
	}
	if label, _ := table.Lookup(1); label != "goldfish, Carassius auratus" {
		t.Errorf("unexpected label for 1: %q", label)
	}
	if _, ok := table.Lookup(3); ok {
		t.Error("fallback table should only resolve 0-2")
	}
}

func TestNilTable(t *testing.T) {
	var table *Table
	if table.Len() != 0 {
		t.Error("nil table should be empty")
	}
	if _, ok := table.Lookup(0); ok {
		t.Error("nil table should not resolve")
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte(`{"0": "tench", "1": "goldfish"}`))
	}))
	defer server.Close()

	table, err := Fetch(context.Background(), server.Client(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", table.Len())
	}
}

func TestFetch_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := Fetch(context.Background(), server.Client(), server.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestResolve_PrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.json")
	if err := os.WriteFile(path, []byte(`{"7": "cock"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := Resolve(context.Background(), Source{Path: path, URL: "http://127.0.0.1:0/never"}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label, _ := table.Lookup(7); label != "cock" {
		t.Errorf("expected cock, got %q", label)
	}
}

func TestResolve_BadFileIsError(t *testing.T) {
	_, err := Resolve(context.Background(), Source{Path: filepath.Join(t.TempDir(), "missing.json")}, discardLogger())
	if err == nil {
		t.Fatal("expected error for missing labels file")
	}
}

func TestResolve_RemoteFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	table, err := Resolve(context.Background(), Source{URL: server.URL, Client: server.Client()}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("expected fallback table, got %d entries", table.Len())
	}
}

func TestResolve_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"0": "a", "1": "b", "2": "c", "3": "d"}`))
	}))
	defer server.Close()

	table, err := Resolve(context.Background(), Source{URL: server.URL, Client: server.Client()}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 4 {
		t.Errorf("expected 4 entries, got %d", table.Len())
	}
}
