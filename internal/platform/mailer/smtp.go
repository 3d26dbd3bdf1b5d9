package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/tool"
	"go.uber.org/zap"
)

// SMTPTransport delivers mail over plain SMTP with optional STARTTLS.
type SMTPTransport struct {
	cfg cfgpkg.SMTPConfig
	log *zap.SugaredLogger
}

func NewSMTPTransport(cfg cfgpkg.SMTPConfig, log *zap.SugaredLogger) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, log: log}
}

func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	messageID := fmt.Sprintf("<%s@%s>", tool.GenerateUUIDV7(), t.cfg.Host)

	var b strings.Builder
	boundary := "b-" + tool.GenerateUUIDV7()
	fmt.Fprintf(&b, "From: %s\r\n", t.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	if msg.BodyHTML != "" {
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.BodyText)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.BodyHTML)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.BodyText)
	}

	if err := t.send(addr, msg.To, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

func (t *SMTPTransport) send(addr, to string, body []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if t.cfg.TLS {
		if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return err
		}
	}
	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(t.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// LogTransport writes the message to the log instead of sending it.
type LogTransport struct {
	log *zap.SugaredLogger
}

func NewLogTransport(log *zap.SugaredLogger) *LogTransport {
	return &LogTransport{log: log}
}

func (t *LogTransport) Send(ctx context.Context, msg *Message) (string, error) {
	id := tool.GenerateUUIDV7()
	t.log.Infow("email_log_transport", "to", msg.To, "subject", msg.Subject, "message_id", id)
	return id, nil
}
