package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/pretyflaco/BBTV2-sub010/internal/config"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendReconciliationAlert notifies the operator that a balance-affecting
// operation could not be reconciled automatically and the card's stored
// balance may have drifted from the rail's ledger.
func (s *Sender) SendReconciliationAlert(cardID int64, amount int64, cause error) error {
	if s.cfg.AlertEmail == "" {
		s.logger.Warnf("No alert email configured; dropping reconciliation alert for card %d", cardID)
		return nil
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.AlertEmail}
	e.Subject = fmt.Sprintf("Reconciliation alert: card %d", cardID)

	body := fmt.Sprintf(
		"A balance operation on card %d could not be reconciled.\n\n"+
			"Amount (minor units): %d\n"+
			"Time: %s\n"+
			"Cause: %v\n\n"+
			"The card's stored balance may no longer match the payment rail's ledger.\n"+
			"Manual review is required.\n",
		cardID, amount, time.Now().Format("2006-01-02 15:04:05"), cause,
	)
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send reconciliation alert for card %d: %v", cardID, err)
		return fmt.Errorf("failed to send reconciliation alert: %w", err)
	}

	s.logger.Infof("Reconciliation alert sent for card %d", cardID)
	return nil
}
