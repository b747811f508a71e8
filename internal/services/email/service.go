package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/donorconnect/api/config"
)

type Service struct {
	config *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
	}
}

// formatAmount renders a minor-unit amount as a display string, e.g. 500 usd -> "5.00 USD"
func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, strings.ToUpper(currency))
}

// SendDonationReceipt sends a receipt for a completed donation
func (s *Service) SendDonationReceipt(to, targetName string, amount int64, currency string) error {
	displayAmount := formatAmount(amount, currency)

	subject := fmt.Sprintf("Your donation to %s - DonorConnect", targetName)
	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="utf-8">
		</head>
		<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
			<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
				<h1 style="color: #059669;">Thank you for your donation!</h1>
				<p>Your donation of <strong>%s</strong> to <strong>%s</strong> has been received.</p>
				<p>You can view your full donation history anytime from your dashboard:</p>
				<p style="margin: 30px 0;">
					<a href="%s/donations" style="background-color: #059669; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">
						View Donation History
					</a>
				</p>
				<p style="color: #666; font-size: 14px;">
					Keep this email for your records. It serves as your donation receipt.
				</p>
			</div>
		</body>
		</html>
	`, displayAmount, targetName, s.config.FrontendURL)

	plainContent := fmt.Sprintf(`
Thank you for your donation!

Your donation of %s to %s has been received.

View your full donation history: %s/donations

Keep this email for your records. It serves as your donation receipt.
	`, displayAmount, targetName, s.config.FrontendURL)

	return s.sendEmail(to, subject, plainContent, htmlContent)
}

// SendRecurringReceipt sends a receipt for one billing cycle of a recurring donation
func (s *Service) SendRecurringReceipt(to, targetName string, amount int64, currency string) error {
	displayAmount := formatAmount(amount, currency)

	subject := fmt.Sprintf("Your recurring donation to %s - DonorConnect", targetName)
	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="utf-8">
		</head>
		<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
			<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
				<h1 style="color: #059669;">Your recurring donation went through</h1>
				<p>This cycle's donation of <strong>%s</strong> to <strong>%s</strong> has been collected.</p>
				<p style="margin: 30px 0;">
					<a href="%s/billing" style="background-color: #059669; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">
						Manage Recurring Donations
					</a>
				</p>
				<p style="color: #666; font-size: 14px;">
					You can cancel or change your recurring donation at any time from the billing page.
				</p>
			</div>
		</body>
		</html>
	`, displayAmount, targetName, s.config.FrontendURL)

	plainContent := fmt.Sprintf(`
Your recurring donation went through

This cycle's donation of %s to %s has been collected.

Manage your recurring donations: %s/billing
	`, displayAmount, targetName, s.config.FrontendURL)

	return s.sendEmail(to, subject, plainContent, htmlContent)
}

// MailerSendRequest represents the MailerSend API request structure
type MailerSendRequest struct {
	From    EmailAddress   `json:"from"`
	To      []EmailAddress `json:"to"`
	Subject string         `json:"subject"`
	Text    string         `json:"text"`
	HTML    string         `json:"html"`
}

type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// sendEmail sends an email using MailerSend
func (s *Service) sendEmail(to, subject, plainContent, htmlContent string) error {
	// If no API key is configured, log the email instead (for development)
	if s.config.MailerSendAPIKey == "" {
		fmt.Printf("\n=== EMAIL (MailerSend not configured) ===\n")
		fmt.Printf("To: %s\n", to)
		fmt.Printf("Subject: %s\n", subject)
		fmt.Printf("Content:\n%s\n", plainContent)
		fmt.Printf("=====================================\n\n")
		return nil
	}

	// Prepare request payload
	payload := MailerSendRequest{
		From: EmailAddress{
			Email: s.config.MailerSendFromEmail,
			Name:  s.config.MailerSendFromName,
		},
		To: []EmailAddress{
			{Email: to},
		},
		Subject: subject,
		Text:    plainContent,
		HTML:    htmlContent,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, "https://api.mailersend.com/v1/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.MailerSendAPIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	return nil
}
