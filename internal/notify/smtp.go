package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/example/bakery-orders/internal/observability"
)

// SMTPMailer emails the customer and copies the shop admin.
type SMTPMailer struct {
	Addr     string
	Username string
	Password string
	From     string
	AdminTo  string
	Renderer Renderer
}

func (m *SMTPMailer) recipients(n Notification) []string {
	var to []string
	if e := strings.TrimSpace(n.Order.CustomerEmail); e != "" {
		to = append(to, e)
	}
	if m.AdminTo != "" {
		to = append(to, m.AdminTo)
	}
	return to
}

func (m *SMTPMailer) Dispatch(ctx context.Context, n Notification) error {
	to := m.recipients(n)
	if len(to) == 0 {
		return nil
	}
	msg, err := m.Renderer.Email(n)
	if err != nil {
		return err
	}
	err = m.send(ctx, to, buildMessage(m.From, to, msg, time.Now()))
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.Notifications.WithLabelValues("email", result).Inc()
	if err != nil {
		return fmt.Errorf("smtp %s: %w", n.Order.OrderID, err)
	}
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, to []string, body []byte) error {
	host, _, err := net.SplitHostPort(m.Addr)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.Addr)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if m.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, host)); err != nil {
			return err
		}
	}
	if err := c.Mail(m.From); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
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

func buildMessage(from string, to []string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
