// Command predict classifies a single image URL and prints the result as JSON.
//
//	predict [flags] <image_url> [model_path] [labels_path]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/Brownie44l1/effnet-api/internal/config"
	"github.com/Brownie44l1/effnet-api/internal/fetch"
	"github.com/Brownie44l1/effnet-api/internal/labels"
	"github.com/Brownie44l1/effnet-api/internal/model"
	"github.com/Brownie44l1/effnet-api/internal/preprocess"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	configFile string
	modelPath  string
	labelsPath string
	libPath    string
	resample   string
	verbose    bool
	imageURL   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "path to YAML config file")
	fs.StringVar(&opts.modelPath, "model", "", "path to ONNX model file")
	fs.StringVar(&opts.labelsPath, "labels", "", "path to labels JSON file")
	fs.StringVar(&opts.libPath, "lib", "", "path to onnxruntime shared library")
	fs.StringVar(&opts.resample, "resample", "", "resize filter: nearest, bilinear, bicubic, lanczos")
	fs.BoolVar(&opts.verbose, "v", false, "log progress to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: predict [flags] <image_url> [model_path] [labels_path]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	rest := fs.Args()
	if len(rest) < 1 || len(rest) > 3 {
		fs.Usage()
		return opts, errors.New("expected an image URL")
	}
	opts.imageURL = rest[0]
	if len(rest) >= 2 {
		opts.modelPath = rest[1]
	}
	if len(rest) >= 3 {
		opts.labelsPath = rest[2]
	}
	return opts, nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.modelPath != "" {
		cfg.Model.Path = opts.modelPath
	}
	if opts.labelsPath != "" {
		cfg.Labels.Path = opts.labelsPath
	}
	if opts.libPath != "" {
		cfg.Model.LibraryPath = opts.libPath
	}
	if opts.resample != "" {
		cfg.Model.Resample = opts.resample
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load()

	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	filter, err := preprocess.ParseFilter(cfg.Model.Resample)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}

	var (
		table      *labels.Table
		session    *model.Session
		labelsErr  error
		sessionErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(ctx, cfg.Labels.Timeout)
		defer cancel()
		table, labelsErr = labels.Resolve(lctx, labels.Source{
			Path:   cfg.Labels.Path,
			URL:    cfg.Labels.URL,
			Client: &http.Client{Timeout: cfg.Labels.Timeout},
		}, logger)
		return labelsErr
	})
	g.Go(func() error {
		session, sessionErr = model.NewSession(model.SessionConfig{
			ModelPath:   cfg.Model.Path,
			LibraryPath: cfg.Model.LibraryPath,
			Threads:     cfg.Model.Threads,
		}, logger)
		return sessionErr
	})
	_ = g.Wait()
	if session != nil {
		defer session.Close()
	}
	if sessionErr != nil {
		fmt.Fprintf(stderr, "Error loading the ONNX model at %s: %v\n", cfg.Model.Path, sessionErr)
		return exitError
	}
	if labelsErr != nil {
		fmt.Fprintf(stderr, "Error loading labels file %s: %v\n", cfg.Labels.Path, labelsErr)
		return exitError
	}

	fetcher := fetch.NewClient(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxBytes:     cfg.Fetch.MaxBytes,
		MaxRedirects: cfg.Fetch.MaxRedirects,
	})
	predictor := model.NewPredictor(session, table, filter, logger)

	return predict(ctx, fetcher, predictor, opts.imageURL, stdout, stderr)
}

type imageSource interface {
	Image(ctx context.Context, url string) (image.Image, error)
}

type classifier interface {
	Predict(ctx context.Context, img image.Image) (model.Prediction, error)
}

func predict(ctx context.Context, images imageSource, c classifier, url string, stdout, stderr io.Writer) int {
	img, err := images.Image(ctx, url)
	if err != nil {
		if errors.Is(err, fetch.ErrFetch) {
			fmt.Fprintf(stderr, "Error downloading the image: %v\n", err)
		} else {
			fmt.Fprintf(stderr, "An error occurred during prediction: %v\n", err)
		}
		return exitError
	}

	pred, err := c.Predict(ctx, img)
	if err != nil {
		fmt.Fprintf(stderr, "An error occurred during prediction: %v\n", err)
		return exitError
	}

	out, err := json.MarshalIndent(pred.Response(), "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "An error occurred during prediction: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, string(out))
	return exitOK
}
