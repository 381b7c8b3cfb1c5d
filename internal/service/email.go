package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"scooter-share-pro/internal/config"
	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
)

// NewNotifier picks the delivery backend named by cfg.Provider.
func NewNotifier(cfg config.EmailConfig) Notifier {
	switch cfg.Provider {
	case "smtp":
		return &smtpNotifier{
			host:     cfg.SMTP.Host,
			port:     cfg.SMTP.Port,
			username: cfg.SMTP.User,
			password: cfg.SMTP.Password,
			from:     cfg.From,
			fromName: cfg.FromName,
		}
	case "sendgrid":
		return &sendGridNotifier{
			apiKey:   cfg.SendGrid.APIKey,
			from:     cfg.From,
			fromName: cfg.FromName,
		}
	default:
		return noopNotifier{}
	}
}

type receipt struct {
	subject string
	plain   string
	html    string
}

func renderReceipt(user *domain.User, rental *domain.Rental, scooter *domain.Scooter) receipt {
	cost := rental.TotalCost.Decimal.StringFixed(2)
	duration := rental.FormattedDuration(rental.StartTime)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", user.FirstName)
	fmt.Fprintf(&b, "Thanks for riding with us. Here is your receipt for rental %s.\n\n", rental.RentalCode)
	fmt.Fprintf(&b, "Scooter:  %s (%s %s)\n", scooter.Identifier, scooter.Brand, scooter.Model)
	fmt.Fprintf(&b, "Started:  %s\n", rental.StartTime.UTC().Format("2006-01-02 15:04 MST"))
	if rental.EndTime != nil {
		fmt.Fprintf(&b, "Ended:    %s\n", rental.EndTime.UTC().Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "Duration: %s\n", duration)
	fmt.Fprintf(&b, "Total:    %s\n\n", cost)
	b.WriteString("Best regards,\nScooter Share Pro")

	htmlBody := fmt.Sprintf(
		"<html><body><p>Hello %s,</p><p>Here is your receipt for rental <strong>%s</strong>.</p>"+
			"<table><tr><td>Scooter</td><td>%s</td></tr><tr><td>Duration</td><td>%s</td></tr>"+
			"<tr><td>Total</td><td>%s</td></tr></table></body></html>",
		html.EscapeString(user.FirstName), html.EscapeString(rental.RentalCode),
		html.EscapeString(scooter.Identifier), html.EscapeString(duration), cost,
	)

	return receipt{
		subject: fmt.Sprintf("Your ride receipt - %s", rental.RentalCode),
		plain:   b.String(),
		html:    htmlBody,
	}
}

type smtpNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
}

func (n *smtpNotifier) SendRentalReceipt(ctx context.Context, user *domain.User, rental *domain.Rental, scooter *domain.Scooter) error {
	r := renderReceipt(user, rental, scooter)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", n.from, n.fromName)
	m.SetAddressHeader("To", user.Email, user.FullName())
	m.SetHeader("Subject", r.subject)
	m.SetBody("text/plain", r.plain)
	m.AddAlternative("text/html", r.html)

	d := gomail.NewDialer(n.host, n.port, n.username, n.password)

	logger.ExternalServiceCall("smtp", "SendRentalReceipt", "rentalID", rental.ID)
	err := d.DialAndSend(m)
	logger.ExternalServiceResult("smtp", "SendRentalReceipt", err, "rentalID", rental.ID)
	if err != nil {
		return fmt.Errorf("failed to send receipt via gomail: %w", err)
	}
	return nil
}

type sendGridNotifier struct {
	apiKey   string
	from     string
	fromName string
}

func (n *sendGridNotifier) SendRentalReceipt(ctx context.Context, user *domain.User, rental *domain.Rental, scooter *domain.Scooter) error {
	r := renderReceipt(user, rental, scooter)

	from := mail.NewEmail(n.fromName, n.from)
	to := mail.NewEmail(user.FullName(), user.Email)
	message := mail.NewSingleEmail(from, r.subject, to, r.plain, r.html)

	client := sendgrid.NewSendClient(n.apiKey)
	logger.ExternalServiceCall("sendgrid", "SendRentalReceipt", "rentalID", rental.ID)
	response, err := client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "SendRentalReceipt", err, "rentalID", rental.ID)
	if err != nil {
		return fmt.Errorf("failed to send receipt via sendgrid: %w", err)
	}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) SendRentalReceipt(ctx context.Context, user *domain.User, rental *domain.Rental, scooter *domain.Scooter) error {
	logger.Debug("Receipt delivery disabled", "rentalID", rental.ID, "email", user.Email)
	return nil
}
