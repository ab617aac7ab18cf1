// Package email defines the outbound email model and its MIME rendering.
package email

import (
	"fmt"
	"mime"
	"net/mail"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Email represents an outbound message ready for a delivery provider.
type Email struct {
	From        string
	FromName    string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	MessageID   string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// RecipientCount returns the number of To, Cc and Bcc addresses combined.
func (e *Email) RecipientCount() int {
	return len(e.To) + len(e.Cc) + len(e.Bcc)
}

// FormattedFrom returns the sender as "Name <address>", or the bare
// address when no display name is set.
func (e *Email) FormattedFrom() string {
	return FormatAddress(e.FromName, e.From)
}

// FormatAddress renders an address with an optional display name.
func FormatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}

// LoadAttachments reads each file path into an Attachment. The filename is
// the base name of the path and the content type is guessed from the
// extension, falling back to content sniffing.
func LoadAttachments(paths []string) ([]Attachment, error) {
	attachments := make([]Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", filepath.Base(path), err)
		}
		attachments = append(attachments, Attachment{
			Filename:    displayName(path),
			ContentType: detectContentType(path, data),
			Content:     data,
		})
	}
	return attachments, nil
}

// displayName strips the unique prefix added to downloaded files
// ("<id>_<name>") so recipients see the original filename.
func displayName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '_'); i == 36 {
		return base[i+1:]
	}
	return base
}

func detectContentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
