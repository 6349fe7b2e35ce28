package service

import (
	"context"
	"errors"

	"github.com/pretyflaco/BBTV2-sub010/internal/integrations/rail"
)

// SweepPendingTopUps reconciles outstanding top-ups directly against the
// rail, covering confirmation signals that never arrived. Paid invoices are
// settled through the normal idempotent path; expired ones are discarded.
func (s *Service) SweepPendingTopUps(ctx context.Context) {
	pending, err := s.store.ListUnprocessedTopUps()
	if err != nil {
		s.log.Errorf("Sweep: failed to list pending top-ups: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	var settled, expired int
	for _, p := range pending {
		state, err := s.rail.InvoiceStatus(ctx, p.PaymentHash)
		if err != nil {
			s.log.Warnf("Sweep: status check failed for %s: %v", p.PaymentHash, err)
			continue
		}
		switch state {
		case rail.InvoiceStatePaid:
			if err := s.ProcessTopUpPayment(ctx, p.PaymentHash); err != nil && !errors.Is(err, ErrNoPendingTopUp) {
				s.log.Errorf("Sweep: settlement failed for %s: %v", p.PaymentHash, err)
				continue
			}
			settled++
		case rail.InvoiceStateExpired:
			if err := s.store.DeletePendingTopUp(p.PaymentHash); err != nil {
				s.log.Errorf("Sweep: failed to discard expired top-up %s: %v", p.PaymentHash, err)
				continue
			}
			expired++
		}
	}

	s.log.Infof("Sweep: %d pending checked, %d settled, %d expired", len(pending), settled, expired)
}
