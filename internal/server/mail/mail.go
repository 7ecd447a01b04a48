// Package mail hands outbound messages to a delivery boundary. Nothing here
// talks SMTP: messages are either logged or dropped into an outbox (an S3
// bucket or a local directory) that a separate relay drains.
package mail

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/logging"
)

type Message struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Created time.Time `json:"created"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them. Intended
// for development, where the reset link is read from the server output.
type LogMailer struct {
	log logging.Logger
}

func NewLogMailer(log logging.Logger) *LogMailer {
	return &LogMailer{log: log.With("module", "mail")}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.log.Info(ctx, "mail", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
