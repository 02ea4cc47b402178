package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"elearn-settlement/internal/config"
	"elearn-settlement/internal/domain/ports/adapter"
)

var _ adapter.ReceiptNotifier = (*SMTPNotifier)(nil)

// SMTPNotifier sends plain-text payment receipts. Callers invoke it
// fire-and-forget: an SMTP failure is logged by the caller and never affects
// the settlement outcome.
type SMTPNotifier struct {
	cfg         config.SMTPConfig
	dialTimeout time.Duration
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, dialTimeout: 5 * time.Second}
}

func (n *SMTPNotifier) SendReceipt(ctx context.Context, r adapter.Receipt) error {
	addr := net.JoinHostPort(n.cfg.Host, n.cfg.Port)

	msg := buildReceiptMessage(n.cfg, r)

	dialer := &net.Dialer{Timeout: n.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client failed: %w", err)
	}
	defer c.Quit()

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth failed: %w", err)
			}
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from failed: %w", err)
	}
	if err := c.Rcpt(r.Email); err != nil {
		return fmt.Errorf("smtp rcpt failed: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	return w.Close()
}

func buildReceiptMessage(cfg config.SMTPConfig, r adapter.Receipt) string {
	var b strings.Builder
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", r.Email)
	fmt.Fprintf(&b, "Subject: Payment Confirmation: %s\r\n", r.SubjectTitle)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Dear %s,\r\n\r\n", r.FullName)
	fmt.Fprintf(&b, "Your payment of %d %s for '%s' was successful.\r\n", r.Amount, r.Currency, r.SubjectTitle)
	fmt.Fprintf(&b, "Order ID: %s\r\n", r.OrderTrackingID)
	fmt.Fprintf(&b, "Method: %s\r\n\r\n", r.Method)
	b.WriteString("Thank you!\r\nThe Team\r\n")
	return b.String()
}
