// Package fetch downloads and decodes the images submitted for prediction.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrFetch covers malformed URLs, transport failures and non-2xx responses.
	ErrFetch = errors.New("image download failed")
	// ErrDecode means the bytes were downloaded but are not a supported image.
	ErrDecode = errors.New("image decode failed")
)

type Config struct {
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
}

type Client struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	maxRedirects := cfg.MaxRedirects
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxBytes: cfg.MaxBytes,
	}
}

// Download returns the body of rawURL. Every failure wraps ErrFetch.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: invalid URL %q: scheme must be http or https", ErrFetch, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: invalid URL %q: no host supplied", ErrFetch, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s for url %s", ErrFetch, resp.Status, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFetch, c.maxBytes)
	}
	return data, nil
}

// Decode supports jpeg, png, gif, webp and bmp.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, format, nil
}

func (c *Client) Image(ctx context.Context, rawURL string) (image.Image, error) {
	data, err := c.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	return img, err
}
