package attachment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.txt":
			w.Write([]byte("alpha"))
		case "/b.pdf":
			w.Write([]byte("%PDF-1.4"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloaderWithClient(dir, srv.Client())

	res, err := d.Download(context.Background(), []Remote{
		{Name: "a.txt", URL: srv.URL + "/a.txt"},
		{Name: "missing.doc", URL: srv.URL + "/missing"},
		{Name: "b.pdf", URL: srv.URL + "/b.pdf"},
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if len(res.Paths) != 2 {
		t.Fatalf("paths: got %d, want 2", len(res.Paths))
	}
	if len(res.Failed) != 1 || res.Failed[0] != "missing.doc" {
		t.Errorf("failed: got %v, want [missing.doc]", res.Failed)
	}
	if !strings.HasSuffix(res.Paths[0], "_a.txt") {
		t.Errorf("first path: got %q, want suffix _a.txt", res.Paths[0])
	}
	data, err := os.ReadFile(res.Paths[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "alpha" {
		t.Errorf("content: got %q, want %q", data, "alpha")
	}

	Cleanup(res.Paths)
	Cleanup(res.Paths)
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("entries after cleanup: got %d, want 0", len(entries))
	}
}

func TestDownload_TooLarge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloaderWithClient(dir, srv.Client())
	d.maxBytes = 16

	res, err := d.Download(context.Background(), []Remote{{Name: "big.bin", URL: srv.URL}})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(res.Paths) != 0 || len(res.Failed) != 1 {
		t.Errorf("got paths=%v failed=%v, want one failure", res.Paths, res.Failed)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %d entries", len(entries))
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`..\windows\x.ini`, "x.ini"},
		{"", "attachment"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRemote_IsAudio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		r    Remote
		want bool
	}{
		{Remote{Name: "voice-message.ogg"}, true},
		{Remote{Name: "clip", ContentType: "audio/mpeg"}, true},
		{Remote{Name: "notes.txt", ContentType: "text/plain"}, false},
	}
	for _, tt := range tests {
		if got := tt.r.IsAudio(); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.r.Name, got, tt.want)
		}
	}
}

func TestNewDownloader_DefaultDir(t *testing.T) {
	t.Parallel()

	d := NewDownloader("")
	if want := filepath.Join(os.TempDir(), "mailbot-attachments"); d.Dir() != want {
		t.Errorf("dir: got %q, want %q", d.Dir(), want)
	}
}
