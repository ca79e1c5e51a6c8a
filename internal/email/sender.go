package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
)

// Sender delivers escalation mail over SMTP
type Sender struct {
	cfg    config.EmailConfig
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

// NewSender creates an SMTP sender
func NewSender(cfg config.EmailConfig, logger *zap.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger,
	}
}

// SendEscalation mails a supervisor about an overdue task
func (s *Sender) SendEscalation(ctx context.Context, supervisor *models.User, task *models.Task, daysOverdue int) error {
	if !s.cfg.Enabled {
		return nil
	}
	if supervisor.Email == "" {
		return fmt.Errorf("supervisor %d has no email address", supervisor.ID)
	}

	subject := fmt.Sprintf("Overdue task escalated: %s", task.Title)
	body := s.buildEscalationBody(supervisor, task, daysOverdue)
	msg := s.buildMessage(supervisor.Email, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.send(addr, auth, s.cfg.From, []string{supervisor.Email}, msg); err != nil {
		s.logger.Error("Failed to send escalation mail",
			zap.Int64("task_id", task.ID),
			zap.String("to", supervisor.Email),
			zap.Error(err))
		return fmt.Errorf("failed to send escalation mail: %w", err)
	}

	s.logger.Info("Escalation mail sent",
		zap.Int64("task_id", task.ID),
		zap.String("to", supervisor.Email))
	return nil
}

func (s *Sender) buildEscalationBody(supervisor *models.User, task *models.Task, daysOverdue int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\r\n\r\n", supervisor.Name)
	fmt.Fprintf(&b, "The task %q is %d day(s) past its deadline and has been escalated to you.\r\n\r\n", task.Title, daysOverdue)
	if task.SLADueDate != nil {
		fmt.Fprintf(&b, "Due date: %s\r\n", task.SLADueDate.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Current status: %s\r\n", task.Status)
	b.WriteString("\r\nPlease review it as soon as possible.\r\n")
	return b.String()
}

func (s *Sender) buildMessage(to, subject, body string) []byte {
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// Verify interface compliance
var _ port.Mailer = (*Sender)(nil)
