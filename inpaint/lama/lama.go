// Package lama is an inpaint.Model backed by a LaMa style HTTP inference
// server. The server receives the tile and its mask as PNG parts of a
// multipart form and answers with the inpainted tile.
package lama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/wudi/inkclean/raster"
)

// ErrNoURL is returned by New when no server URL is configured.
var ErrNoURL = errors.New("lama: server URL is required")

const (
	inpaintPath  = "/inpaint"
	maxErrorBody = 1024
)

type Config struct {
	// URL is the server base URL, for example http://127.0.0.1:8090.
	URL string
	// ReleasePath, when set, is POSTed after every band so the server can
	// free accelerator memory.
	ReleasePath    string
	AuthToken      string
	RequestTimeout time.Duration
	MaxConns       int
}

// Client implements inpaint.Model and inpaint.Releaser.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     max(cfg.MaxConns, 4),
		MaxIdleConnsPerHost: max(cfg.MaxConns, 4),
		MaxIdleConns:        max(cfg.MaxConns*2, 32),
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{cfg: cfg, http: &http.Client{Transport: transport}}, nil
}

func (c *Client) Name() string { return "lama" }

func (c *Client) Inpaint(ctx context.Context, img *raster.Image, mask *raster.Mask) (*raster.Image, error) {
	if err := raster.CheckSize(img, mask); err != nil {
		return nil, err
	}
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := writePNG(form, "image", img.ToStdImage()); err != nil {
		return nil, err
	}
	if err := writePNG(form, "mask", mask.ToStdImage()); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, inpaintPath, form.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	decoded, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("lama: decode response: %w", err)
	}
	return raster.FromImage(decoded).ToRGB(), nil
}

// Release asks the server to drop cached tensors. It is a no-op when no
// release path is configured.
func (c *Client) Release(ctx context.Context) error {
	if c.cfg.ReleasePath == "" {
		return nil
	}
	resp, err := c.post(ctx, c.cfg.ReleasePath, "", nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		// The body is read by the caller, so the timer must outlive this call.
		resp, err := c.do(ctx, path, contentType, body)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.do(ctx, path, contentType, body)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "image/png")
	if c.cfg.AuthToken != "" {
		req.Header.Set("X-Internal-Token", c.cfg.AuthToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

// StatusError reports a non-200 answer from the server.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lama: %s failed: status %d: %s", e.Path, e.Code, e.Body)
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func writePNG(form *multipart.Writer, field string, img image.Image) error {
	w, err := form.CreateFormFile(field, field+".png")
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
