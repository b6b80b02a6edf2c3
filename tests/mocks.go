package testutil

import (
	"sync"

	"github.com/cwarwicker/elbp/core"
)

// Logger discards everything but keeps the messages for assertions.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, msg)
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log(msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log(msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log(msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log(msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log(msg) }

// Mailer records sent messages. Messages to an address in Fail return its error.
type Mailer struct {
	mu   sync.Mutex
	Sent []*core.EmailMessage
	Fail map[string]error
}

var _ core.EmailService = (*Mailer)(nil)

func (m *Mailer) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		_ = m.SendMessage(msg)
	}
}

func (m *Mailer) SendMessage(msg *core.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, to := range msg.To {
		if err, ok := m.Fail[to.Address]; ok {
			return err
		}
	}
	m.Sent = append(m.Sent, msg)
	return nil
}
