// Package attachment downloads files attached to chat messages into a
// local directory and removes them once a send is resolved.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultMaxBytes = 25 << 20
	maxConcurrent   = 4
)

// Remote describes a file attached to a chat message.
type Remote struct {
	Name        string
	URL         string
	ContentType string
	Size        int
}

var audioExtensions = map[string]bool{
	".ogg": true, ".oga": true, ".mp3": true, ".wav": true,
	".m4a": true, ".webm": true, ".flac": true, ".mp4": true,
}

// IsAudio reports whether r looks like a voice message or audio file.
func (r Remote) IsAudio() bool {
	if strings.HasPrefix(strings.ToLower(r.ContentType), "audio/") {
		return true
	}
	return audioExtensions[strings.ToLower(filepath.Ext(r.Name))]
}

// Names returns the display names of files.
func Names(files []Remote) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}

// Result lists the downloaded paths, in input order, and the names of
// files that could not be fetched.
type Result struct {
	Paths  []string
	Failed []string
}

// Downloader fetches attachments over HTTP.
type Downloader struct {
	client   *http.Client
	dir      string
	maxBytes int64
}

// NewDownloader creates a Downloader writing into dir. An empty dir selects
// a mailbot directory under the system temp dir.
func NewDownloader(dir string) *Downloader {
	return NewDownloaderWithClient(dir, &http.Client{Timeout: defaultTimeout})
}

// NewDownloaderWithClient creates a Downloader with a custom HTTP client.
func NewDownloaderWithClient(dir string, client *http.Client) *Downloader {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "mailbot-attachments")
	}
	return &Downloader{client: client, dir: dir, maxBytes: defaultMaxBytes}
}

// Dir returns the directory downloads are written to.
func (d *Downloader) Dir() string {
	return d.dir
}

// Download fetches files concurrently. Each file is stored as
// "<uuid>_<name>" so concurrent requests never collide. A failed file is
// reported in Result.Failed and does not stop the others. The error is
// non-nil only when the download directory cannot be created.
func (d *Downloader) Download(ctx context.Context, files []Remote) (Result, error) {
	if len(files) == 0 {
		return Result{}, nil
	}
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return Result{}, fmt.Errorf("failed to create attachment directory: %w", err)
	}

	paths := make([]string, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, f := range files {
		g.Go(func() error {
			paths[i], errs[i] = d.fetch(gctx, f)
			return nil
		})
	}
	g.Wait()

	var res Result
	for i, f := range files {
		if errs[i] != nil {
			slog.Warn("attachment download failed", "name", f.Name, "error", errs[i])
			res.Failed = append(res.Failed, f.Name)
			continue
		}
		res.Paths = append(res.Paths, paths[i])
	}
	return res, nil
}

func (d *Downloader) fetch(ctx context.Context, f Remote) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(d.dir, uuid.NewString()+"_"+sanitizeName(f.Name))
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, d.maxBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > d.maxBytes {
		err = fmt.Errorf("file exceeds %d bytes", d.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}

// Cleanup removes downloaded files. Files already gone are ignored.
func Cleanup(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove attachment", "path", p, "error", err)
		}
	}
}
