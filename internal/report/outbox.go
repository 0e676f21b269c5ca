package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Message is one rendered report addressed to a client.
type Message struct {
	SiteID  string
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered reports.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FileOutbox writes each report as an .eml file so an external mailer or an
// operator can pick it up.
type FileOutbox struct {
	Dir string
	now func() time.Time
}

func NewFileOutbox(dir string) *FileOutbox {
	return &FileOutbox{Dir: dir, now: time.Now}
}

func (o *FileOutbox) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.Dir, 0o750); err != nil {
		return fmt.Errorf("create outbox: %w", err)
	}

	now := o.now().UTC()
	name := fmt.Sprintf("%s-%s.eml", now.Format("20060102T150405"), sanitize(msg.SiteID))
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	tmp, err := os.CreateTemp(o.Dir, ".report-*")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(o.Dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store report file: %w", err)
	}
	return nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
