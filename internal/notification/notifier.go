package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mrz1836/postmark"

	internal "github.com/frahmantamala/pos-billing/internal"
)

// Sender is the slice of the Postmark client the mailer uses, extracted so
// tests can capture outgoing mail without hitting the API.
type Sender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Mailer sends billing emails through Postmark. It implements
// subscription.Notifier.
type Mailer struct {
	sender    Sender
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

func NewMailer(cfg internal.MailConfig, logger *slog.Logger) *Mailer {
	return &Mailer{
		sender:    postmark.NewClient(cfg.PostmarkServerToken, ""),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// NewMailerWithSender swaps the Postmark client for an arbitrary sender,
// used by tests.
func NewMailerWithSender(sender Sender, cfg internal.MailConfig, logger *slog.Logger) *Mailer {
	m := NewMailer(cfg, logger)
	m.sender = sender
	return m
}

func (m *Mailer) SendRenewalSuccess(ctx context.Context, email, name string, amountIDR int64, nextBillingDate time.Time) error {
	subject := "Pembayaran langganan berhasil"
	body := fmt.Sprintf(
		"<p>Halo %s,</p><p>Pembayaran langganan Anda sebesar <strong>%s</strong> telah berhasil.</p><p>Tagihan berikutnya: %s.</p>",
		name, formatIDR(amountIDR), nextBillingDate.Format("2 January 2006"))
	return m.send(ctx, email, subject, "renewal-success", body)
}

func (m *Mailer) SendRenewalFailed(ctx context.Context, email, name string, amountIDR int64, reason string, nextRetryAt time.Time, suspendWarning bool) error {
	subject := "Pembayaran langganan gagal"
	body := fmt.Sprintf(
		"<p>Halo %s,</p><p>Pembayaran langganan Anda sebesar <strong>%s</strong> gagal: %s.</p><p>Kami akan mencoba lagi pada %s.</p>",
		name, formatIDR(amountIDR), reason, nextRetryAt.Format("2 January 2006"))
	if suspendWarning {
		body += "<p><strong>Perhatian:</strong> akun Anda akan dinonaktifkan jika pembayaran terus gagal. Mohon perbarui metode pembayaran Anda.</p>"
	}
	return m.send(ctx, email, subject, "renewal-failed", body)
}

func (m *Mailer) SendSuspended(ctx context.Context, email, name string) error {
	subject := "Akun Anda dinonaktifkan"
	body := fmt.Sprintf(
		"<p>Halo %s,</p><p>Langganan Anda telah dinonaktifkan karena pembayaran gagal berulang kali. Seluruh lisensi toko Anda tidak aktif sampai pembayaran diterima.</p>",
		name)
	return m.send(ctx, email, subject, "suspended", body)
}

func (m *Mailer) SendReactivated(ctx context.Context, email, name string) error {
	subject := "Akun Anda aktif kembali"
	body := fmt.Sprintf(
		"<p>Halo %s,</p><p>Pembayaran Anda telah diterima dan seluruh lisensi toko Anda aktif kembali. Terima kasih!</p>",
		name)
	return m.send(ctx, email, subject, "reactivated", body)
}

func (m *Mailer) SendRenewalReminder(ctx context.Context, email, name string, dueDate time.Time, daysLeft int, amountIDR int64) error {
	subject := fmt.Sprintf("Tagihan langganan jatuh tempo dalam %d hari", daysLeft)
	body := fmt.Sprintf(
		"<p>Halo %s,</p><p>Tagihan langganan Anda sebesar <strong>%s</strong> akan jatuh tempo pada %s.</p>",
		name, formatIDR(amountIDR), dueDate.Format("2 January 2006"))
	return m.send(ctx, email, subject, "renewal-reminder", body)
}

func (m *Mailer) SendTrialEnding(ctx context.Context, email, name string, endsAt time.Time, daysLeft int) error {
	subject := fmt.Sprintf("Masa uji coba berakhir dalam %d hari", daysLeft)
	body := fmt.Sprintf(
		"<p>Halo %s,</p><p>Masa uji coba Anda berakhir pada %s. Tagihan pertama akan ditagihkan setelahnya.</p>",
		name, endsAt.Format("2 January 2006"))
	return m.send(ctx, email, subject, "trial-ending", body)
}

func (m *Mailer) send(ctx context.Context, to, subject, tag, htmlBody string) error {
	resp, err := m.sender.SendEmail(ctx, postmark.Email{
		From:     fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail),
		To:       to,
		Subject:  subject,
		Tag:      tag,
		HTMLBody: htmlBody,
	})
	if err != nil {
		m.logger.Error("failed to send email", "to", to, "tag", tag, "error", err)
		return fmt.Errorf("send email %s: %w", tag, err)
	}
	if resp.ErrorCode > 0 {
		m.logger.Error("postmark rejected email", "to", to, "tag", tag,
			"error_code", resp.ErrorCode, "message", resp.Message)
		return fmt.Errorf("send email %s: postmark error %d: %s", tag, resp.ErrorCode, resp.Message)
	}

	m.logger.Info("billing email sent", "to", to, "tag", tag)
	return nil
}

// formatIDR renders an amount as "Rp 1.234.567".
func formatIDR(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	n := len(digits)
	if n <= 3 {
		return "Rp " + digits
	}

	var out []byte
	for i, d := range []byte(digits) {
		if i > 0 && (n-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, d)
	}
	return "Rp " + string(out)
}
