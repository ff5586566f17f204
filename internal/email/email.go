// Package email sends order confirmation mail. SMTP settings live in the
// system_settings table so admins can change them without a redeploy; mail
// is skipped entirely while they are unset.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"gamekey-store/internal/database"
	"gamekey-store/internal/logging"
)

// Settings keys read from system_settings
const (
	settingHost     = "smtp_host"
	settingPort     = "smtp_port"
	settingUser     = "smtp_user"
	settingPassword = "smtp_password"
	settingFrom     = "smtp_from"
)

// Store reads SMTP configuration
type Store interface {
	GetSystemSettings(ctx context.Context, keys ...string) (map[string]string, error)
}

// sendFunc matches smtp.SendMail, swapped out in tests
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends transactional mail over SMTP
type Mailer struct {
	store     Store
	storeName string
	send      sendFunc
	logger    zerolog.Logger
}

// NewMailer creates a mailer
func NewMailer(store Store, storeName string) *Mailer {
	return &Mailer{
		store:     store,
		storeName: storeName,
		send:      smtp.SendMail,
		logger:    logging.For("email"),
	}
}

// SendOrderConfirmation emails the customer their keys. Orders fulfilled
// with pending placeholders say so instead of exposing the marker keys.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, order *database.Order, licenses []*database.License) error {
	settings, err := m.store.GetSystemSettings(ctx,
		settingHost, settingPort, settingUser, settingPassword, settingFrom)
	if err != nil {
		return fmt.Errorf("failed to load smtp settings: %w", err)
	}
	host := settings[settingHost]
	from := settings[settingFrom]
	if host == "" || from == "" {
		m.logger.Debug().Str("order", order.OrderNumber).Msg("smtp not configured, skipping confirmation email")
		return nil
	}
	port := settings[settingPort]
	if port == "" {
		port = "587"
	}

	var auth smtp.Auth
	if user := settings[settingUser]; user != "" {
		auth = smtp.PlainAuth("", user, settings[settingPassword], host)
	}

	subject := fmt.Sprintf("%s - Order %s", m.storeName, order.OrderNumber)
	body := m.buildBody(order, licenses)
	msg := buildMessage(from, order.CustomerEmail, subject, body)

	if err := m.send(host+":"+port, auth, from, []string{order.CustomerEmail}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	m.logger.Info().Str("order", order.OrderNumber).Str("to", order.CustomerEmail).Msg("confirmation email sent")
	return nil
}

func (m *Mailer) buildBody(order *database.Order, licenses []*database.License) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your purchase!\r\n\r\n")
	fmt.Fprintf(&b, "Order: %s\r\n", order.OrderNumber)
	fmt.Fprintf(&b, "Total: %.2f %s\r\n\r\n", float64(order.AmountCents)/100, order.Currency)

	var pending int
	for _, lic := range licenses {
		if lic.Status == database.LicensePending {
			pending++
			continue
		}
		name := "License key"
		if lic.ProductName != nil && *lic.ProductName != "" {
			name = *lic.ProductName
		}
		fmt.Fprintf(&b, "%s: %s\r\n", name, lic.LicenseKey)
	}
	if pending > 0 {
		fmt.Fprintf(&b, "\r\n%d key(s) are being restocked and will be delivered shortly.\r\n", pending)
	}
	fmt.Fprintf(&b, "\r\nYou can view your order any time using your order number and email.\r\n")
	return b.String()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
