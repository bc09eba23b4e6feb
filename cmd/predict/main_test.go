package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Brownie44l1/effnet-api/internal/fetch"
	"github.com/Brownie44l1/effnet-api/internal/model"
)

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseArgs([]string{"-resample", "bicubic", "http://x/cat.jpg", "m.onnx", "l.json"}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.imageURL != "http://x/cat.jpg" {
		t.Errorf("unexpected url %q", opts.imageURL)
	}
	if opts.modelPath != "m.onnx" || opts.labelsPath != "l.json" {
		t.Errorf("positional overrides not applied: %+v", opts)
	}
	if opts.resample != "bicubic" {
		t.Errorf("expected bicubic, got %q", opts.resample)
	}
}

func TestParseArgs_Usage(t *testing.T) {
	for _, args := range [][]string{{}, {"a", "b", "c", "d"}} {
		var stderr bytes.Buffer
		if _, err := parseArgs(args, &stderr); err == nil {
			t.Errorf("%v: expected usage error", args)
		}
		if !strings.Contains(stderr.String(), "Usage: predict") {
			t.Errorf("%v: expected usage text, got %q", args, stderr.String())
		}
	}
}

func TestRun_UsageExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != exitUsage {
		t.Errorf("expected exit %d, got %d", exitUsage, code)
	}
}

func TestRun_ModelLoadFailure(t *testing.T) {
	dir := t.TempDir()
	labelsPath := filepath.Join(dir, "labels.json")
	if err := os.WriteFile(labelsPath, []byte(`{"0": "tench"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"http://127.0.0.1:1/cat.jpg", filepath.Join(dir, "missing.onnx"), labelsPath}, &stdout, &stderr)
	if code != exitError {
		t.Errorf("expected exit %d, got %d", exitError, code)
	}
	if !strings.Contains(stderr.String(), "Error loading the ONNX model") {
		t.Errorf("unexpected stderr %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should be printed to stdout, got %q", stdout.String())
	}
}

type stubImages struct {
	err error
}

func (s stubImages) Image(ctx context.Context, url string) (image.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

type stubClassifier struct {
	pred model.Prediction
	err  error
}

func (s stubClassifier) Predict(ctx context.Context, img image.Image) (model.Prediction, error) {
	return s.pred, s.err
}

func TestPredict_PrintsJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	c := stubClassifier{pred: model.Prediction{Label: "tench, Tinca tinca", Confidence: 0.5, Known: true}}
	if code := predict(context.Background(), stubImages{}, c, "http://x", &stdout, &stderr); code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	var got model.PredictionResponse
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not JSON: %v (%q)", err, stdout.String())
	}
	if got.PredictedLabel != "tench, Tinca tinca" || got.Confidence != 0.5 {
		t.Errorf("unexpected output %+v", got)
	}
}

func TestPredict_Failures(t *testing.T) {
	tests := []struct {
		name   string
		images stubImages
		c      stubClassifier
		want   string
	}{
		{"download", stubImages{err: fmt.Errorf("%w: 404", fetch.ErrFetch)}, stubClassifier{}, "Error downloading the image"},
		{"decode", stubImages{err: fmt.Errorf("%w: unknown format", fetch.ErrDecode)}, stubClassifier{}, "An error occurred during prediction"},
		{"inference", stubImages{}, stubClassifier{err: errors.New("bad shape")}, "An error occurred during prediction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := predict(context.Background(), tt.images, tt.c, "http://x", &stdout, &stderr); code != exitError {
				t.Errorf("expected exit %d, got %d", exitError, code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("expected %q in stderr, got %q", tt.want, stderr.String())
			}
		})
	}
}
