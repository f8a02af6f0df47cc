package app

import "github.com/classpad/classpad/pkg/mail"

// Settings converts the SMTP config block into the mail package representation.
func (c SMTPConfig) Settings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.Enabled,
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		UseTLS:   c.UseTLS,
		Timeout:  c.Timeout,
	}
}
