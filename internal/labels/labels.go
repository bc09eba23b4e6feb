// Package labels holds the class index to name table used to resolve model
// output indices.
package labels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
)

// Unknown is reported for indices the table cannot resolve.
const Unknown = "unknown"

// Table is immutable once built and safe for concurrent reads.
type Table struct {
	entries map[string]string
}

func New(entries map[string]string) (*Table, error) {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || strconv.Itoa(i) != k {
			return nil, fmt.Errorf("invalid class index %q", k)
		}
		copied[k] = v
	}
	return &Table{entries: copied}, nil
}

// Fallback is the table used when the remote label source is unavailable.
func Fallback() *Table {
	return &Table{entries: map[string]string{
		"0": "tench, Tinca tinca",
		"1": "goldfish, Carassius auratus",
		"2": "great white shark, white shark, man-eater, man-eating shark, Carcharodon carcharias",
	}}
}

func Parse(data []byte) (*Table, error) {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	return New(entries)
}

func (t *Table) Lookup(index int) (string, bool) {
	if t == nil || index < 0 {
		return "", false
	}
	label, ok := t.entries[strconv.Itoa(index)]
	return label, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	return Parse(data)
}

func Fetch(ctx context.Context, client *http.Client, url string) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build labels request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch labels: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch labels: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels response: %w", err)
	}
	return Parse(data)
}

// Source says where Resolve should look for the table. Path wins over URL.
type Source struct {
	Path   string
	URL    string
	Client *http.Client
}

// Resolve loads the table from Source. A broken local file is an error; a
// failed remote fetch degrades to Fallback.
func Resolve(ctx context.Context, src Source, logger *slog.Logger) (*Table, error) {
	if src.Path != "" {
		table, err := LoadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("labels %s: %w", src.Path, err)
		}
		logger.Info("labels loaded from file", "path", src.Path, "count", table.Len())
		return table, nil
	}

	if src.URL != "" {
		client := src.Client
		if client == nil {
			client = http.DefaultClient
		}
		table, err := Fetch(ctx, client, src.URL)
		if err == nil {
			logger.Info("labels fetched", "url", src.URL, "count", table.Len())
			return table, nil
		}
		logger.Warn("error fetching labels, using fallback table", "url", src.URL, "error", err)
	}

	return Fallback(), nil
}
