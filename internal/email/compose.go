package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// NewMessageID returns a unique message identifier without angle brackets,
// using the domain part of the sender address when available.
func NewMessageID(from string) string {
	domain := "mailbot.local"
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return uuid.NewString() + "@" + domain
}

// Compose renders msg as an RFC 5322 message. Bcc recipients are never
// written to the header. A plain message without attachments is written as
// a single inline part; otherwise a multipart/mixed body is produced.
func Compose(w io.Writer, msg *Email, date time.Time) error {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})
	h.SetAddressList("To", addressList(msg.To))
	h.SetAddressList("Cc", addressList(msg.Cc))
	h.SetSubject(msg.Subject)

	id := strings.Trim(msg.MessageID, "<>")
	if id == "" {
		id = NewMessageID(msg.From)
	}
	h.SetMessageID(id)
	h.Set("MIME-Version", "1.0")

	if len(msg.Attachments) == 0 && msg.HtmlBody == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		body, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("failed to create message body: %w", err)
		}
		if _, err := io.WriteString(body, msg.TextBody); err != nil {
			return fmt.Errorf("failed to write message body: %w", err)
		}
		return body.Close()
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create multipart writer: %w", err)
	}

	inline, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create inline part: %w", err)
	}
	if msg.TextBody != "" || msg.HtmlBody == "" {
		if err := writeInlinePart(inline, "text/plain", msg.TextBody); err != nil {
			return err
		}
	}
	if msg.HtmlBody != "" {
		if err := writeInlinePart(inline, "text/html", msg.HtmlBody); err != nil {
			return err
		}
	}
	if err := inline.Close(); err != nil {
		return fmt.Errorf("failed to close inline part: %w", err)
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		ah.SetContentType(att.ContentType, nil)
		ah.SetFilename(att.Filename)
		part, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write(att.Content); err != nil {
			return fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		if err := part.Close(); err != nil {
			return fmt.Errorf("failed to close attachment %s: %w", att.Filename, err)
		}
	}

	return mw.Close()
}

// ComposeBytes is Compose into a byte slice.
func ComposeBytes(msg *Email, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := Compose(&buf, msg, date); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInlinePart(inline *mail.InlineWriter, contentType, content string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	part, err := inline.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return part.Close()
}

func addressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, 0, len(addrs))
	for _, addr := range addrs {
		list = append(list, &mail.Address{Address: addr})
	}
	return list
}
