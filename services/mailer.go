// services/mailer.go
package services

import (
	"fmt"
	"log"
	"os"

	"engagement-api/models"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends transactional email through SendGrid. All sends are
// best-effort; callers log failures and move on.
type Mailer struct {
	apiKey    string
	fromName  string
	fromEmail string
	baseURL   string // public site URL used in links
}

func NewMailer() *Mailer {
	return &Mailer{
		apiKey:    os.Getenv("SENDGRID_API_KEY"),
		fromName:  "Engage",
		fromEmail: os.Getenv("EMAIL_FROM"),
		baseURL:   os.Getenv("PUBLIC_BASE_URL"),
	}
}

func (m *Mailer) send(toName, toEmail, subject, htmlBody string) error {
	if m == nil || m.apiKey == "" {
		log.Printf("✉️  mailer not configured, dropping %q to %s", subject, toEmail)
		return nil
	}
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	msg := mail.NewSingleEmail(from, subject, to, "", htmlBody)
	client := sendgrid.NewSendClient(m.apiKey)
	resp, err := client.Send(msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned %d", resp.StatusCode)
	}
	return nil
}

// SendVerificationEmail mails the address-confirmation link carrying
// the user's verification uuid.
func (m *Mailer) SendVerificationEmail(user *models.User, ref string) error {
	if m == nil {
		return nil
	}
	link := fmt.Sprintf("%s/verify/%s?ref=%s", m.baseURL, user.VerificationUUID, ref)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Please confirm your email address by following <a href=%q>this link</a>.</p>",
		user.DisplayName, link,
	)
	return m.send(user.DisplayName, user.Email, "Verify your email", body)
}

// SendInvitationEmail mails a referral invitation on behalf of a user.
func (m *Mailer) SendInvitationEmail(email, referrerID, referrerName string) error {
	if m == nil {
		return nil
	}
	link := fmt.Sprintf("%s/register?from=%s", m.baseURL, referrerID)
	body := fmt.Sprintf(
		"<p>%s invited you to join. <a href=%q>Create your account</a>.</p>",
		referrerName, link,
	)
	return m.send("", email, fmt.Sprintf("%s invited you", referrerName), body)
}
