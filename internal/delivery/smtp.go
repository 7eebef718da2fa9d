package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"recomail/internal/types"
)

// Sender delivers a single composed email. Implementations must return an
// error classifiable by classifySendError; a nil error means the message
// was accepted by the server.
type Sender interface {
	Send(ctx context.Context, msg types.ComposedEmail) error
}

// SenderConfig holds the SMTP connection settings for the sender.
type SenderConfig struct {
	Host               string
	Port               int
	Username           string
	Password           types.SecretString
	SenderEmail        string
	SenderName         string
	UseSTARTTLS        bool
	InsecureSkipVerify bool
	SendTimeout        time.Duration
}

// SMTPSender sends email over a direct SMTP connection. Port 465 style
// implicit TLS is the default; UseSTARTTLS switches to a plaintext dial
// upgraded with STARTTLS, which is what most port 587 submission
// endpoints expect.
type SMTPSender struct {
	cfg    SenderConfig
	logger types.Logger
}

// NewSMTPSender creates a sender from the given connection settings.
func NewSMTPSender(cfg SenderConfig, logger types.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

var _ Sender = (*SMTPSender)(nil)

// Send opens a connection, authenticates if credentials are configured,
// and transmits the message. The connection is scoped to the call and
// closed on every path. Each message carries its own deadline derived
// from SendTimeout.
func (s *SMTPSender) Send(ctx context.Context, msg types.ComposedEmail) error {
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	client, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password.Unmask(), s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.SenderEmail); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(s.buildMessage(msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}

	return client.Quit()
}

// connect dials the server and returns an SMTP client with TLS
// established, either implicitly or via STARTTLS.
func (s *SMTPSender) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	dialer := &net.Dialer{}

	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}

	if s.cfg.UseSTARTTLS {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// buildMessage assembles a multipart/alternative MIME message with the
// plain-text part first and the HTML part last, per RFC 2046 preference
// ordering.
func (s *SMTPSender) buildMessage(msg types.ComposedEmail) []byte {
	boundary := "part-" + uuid.NewString()
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.cfg.Host)

	var b strings.Builder
	writeHeader := func(key, value string) {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	from := s.cfg.SenderEmail
	if s.cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.SenderName), s.cfg.SenderEmail)
	}

	writeHeader("From", from)
	writeHeader("To", msg.Recipient)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader("Message-ID", messageID)
	writeHeader("X-Reference-ID", msg.ReferenceID)
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")

	writePart := func(contentType, body string) {
		b.WriteString("--" + boundary + "\r\n")
		writeHeader("Content-Type", contentType+"; charset=utf-8")
		writeHeader("Content-Transfer-Encoding", "8bit")
		b.WriteString("\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
	}

	writePart("text/plain", msg.BodyText)
	writePart("text/html", msg.BodyHTML)
	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String())
}
