package mailer

import (
	"fmt"
	"io"

	"storefront/internal/config"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer sends transactional email
type Mailer interface {
	SendVerificationEmail(to, link string) error
	SendPasswordResetOTP(to, code string) error
	SendOrderConfirmation(to, orderID string, total float64, qrPNG []byte) error
	SendCouponNotification(to, code string, amount float64, till string) error
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewSMTPMailer creates a Mailer backed by an SMTP server
func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (m *smtpMailer) send(msg *gomail.Message) error {
	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send email",
			zap.Strings("to", msg.GetHeader("To")),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendVerificationEmail sends the account confirmation link
func (m *smtpMailer) SendVerificationEmail(to, link string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Confirm your email address")
	msg.SetBody("text/html", fmt.Sprintf(
		`<h3>Welcome!</h3><p>Please confirm your email address by clicking the link below.</p><p><a href=%q>Confirm email</a></p>`,
		link))
	return m.send(msg)
}

// SendPasswordResetOTP sends the one-time code for a password reset
func (m *smtpMailer) SendPasswordResetOTP(to, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your password reset code")
	msg.SetBody("text/html", fmt.Sprintf(
		`<p>Your password reset code is <b>%s</b>. It expires in 10 minutes.</p><p>If you did not request a reset, ignore this email.</p>`,
		code))
	return m.send(msg)
}

// SendOrderConfirmation sends the order summary with an inline tracking QR code
func (m *smtpMailer) SendOrderConfirmation(to, orderID string, total float64, qrPNG []byte) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your order is confirmed")
	msg.SetBody("text/html", fmt.Sprintf(
		`<h3>Thank you for your order!</h3><p>Order <b>%s</b> for a total of <b>%.2f</b> is on its way.</p><p>Scan the attached code to track it.</p>`,
		orderID, total))
	if len(qrPNG) > 0 {
		msg.Attach("order-qr.png",
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(qrPNG)
				return err
			}))
	}
	return m.send(msg)
}

// SendCouponNotification tells a user a coupon was issued to them
func (m *smtpMailer) SendCouponNotification(to, code string, amount float64, till string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "A coupon is waiting for you")
	msg.SetBody("text/html", fmt.Sprintf(
		`<p>Use code <b>%s</b> for %.2f off. Valid until %s.</p>`,
		code, amount, till))
	return m.send(msg)
}
