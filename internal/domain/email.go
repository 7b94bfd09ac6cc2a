package domain

// Mailer defines the contract for sending notification emails
// (infrastructure port). The portal mails are plain text only.
type Mailer interface {
	Send(to, subject, body string) error
}
