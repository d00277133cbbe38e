package mailer

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"course-subscription-be/internal/pkg/logger"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendOpsAlert(subject string, details map[string]interface{}) error
}

// sender is the part of gomail.Dialer the service uses.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	dialer      sender
	senderEmail string
	senderName  string
	opsEmail    string
	logger      logger.ILogger
}

func NewEmailService(host string, port int, username, password, senderName, opsEmail string, log logger.ILogger) IEmailService {
	d := gomail.NewDialer(host, port, username, password)

	return &emailService{
		dialer:      d,
		senderEmail: username,
		senderName:  senderName,
		opsEmail:    opsEmail,
		logger:      log,
	}
}

// SendOpsAlert mails the operations inbox. Without OPS_ALERT_EMAIL or SMTP
// host it only logs.
func (s *emailService) SendOpsAlert(subject string, details map[string]interface{}) error {
	if s.opsEmail == "" || s.senderEmail == "" {
		s.logger.Warn("MAILER", "Ops alert not mailed: no recipient configured", map[string]interface{}{
			"subject": subject,
		})
		return nil
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", s.opsEmail)
	m.SetHeader("Subject", "[Billing] "+subject)
	m.SetBody("text/html", renderAlert(subject, details))

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("MAILER", "Failed to send ops alert", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
		return err
	}

	s.logger.Info("MAILER", "Ops alert sent", map[string]interface{}{
		"subject": subject,
	})
	return nil
}

func renderAlert(subject string, details map[string]interface{}) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&rows, `<tr><td style="padding: 4px 12px 4px 0;"><b>%s</b></td><td>%s</td></tr>`,
			html.EscapeString(k), html.EscapeString(fmt.Sprint(details[k])))
	}

	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>%s</h2>
			<p>This activation was granted without independent confirmation from the payment provider. Please review it.</p>
			<table>%s</table>
		</div>
	`, html.EscapeString(subject), rows.String())
}
