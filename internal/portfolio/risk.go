package portfolio

import (
	"context"
	"errors"
	"fmt"

	"basket-trading/internal/tradeerr"
)

// RiskLimits are pre-trade checks applied to a whole batch before any order
// is sent. Zero values disable a check.
type RiskLimits struct {
	MaxOrderValue float64 `yaml:"max_order_value" json:"max_order_value"` // rupees per order
	MaxBatchValue float64 `yaml:"max_batch_value" json:"max_batch_value"` // rupees of BUYs per batch
	CheckFunds    bool    `yaml:"check_funds" json:"check_funds"`         // require available cash >= net cash needed
}

// CheckOrders validates order values against the limits. cashNeeded is the
// net outflow of the batch (BUYs minus SELLs).
func (r RiskLimits) CheckOrders(cashNeeded float64, orderValues []float64) error {
	var errs []error
	for i, v := range orderValues {
		if r.MaxOrderValue > 0 && v > r.MaxOrderValue {
			errs = append(errs, fmt.Errorf("order %d value %.2f exceeds limit %.2f", i, v, r.MaxOrderValue))
		}
	}
	if r.MaxBatchValue > 0 && cashNeeded > r.MaxBatchValue {
		errs = append(errs, fmt.Errorf("batch needs %.2f, limit is %.2f", cashNeeded, r.MaxBatchValue))
	}
	if err := errors.Join(errs...); err != nil {
		return tradeerr.Wrap(tradeerr.ErrValidation, "riskCheck", err)
	}
	return nil
}

// checkRisk runs the static limits and, when enabled, compares the batch's
// cash need with the account's available cash.
func (s *Service) checkRisk(ctx context.Context, cashNeeded float64, orderValues []float64) error {
	lim := s.policy.Risk
	if err := lim.CheckOrders(cashNeeded, orderValues); err != nil {
		return err
	}
	if !lim.CheckFunds || cashNeeded <= 0 || s.dryRun {
		return nil
	}
	funds, err := s.trader.GetFunds(ctx)
	if err != nil {
		return err
	}
	if funds.AvailableCash < cashNeeded {
		return tradeerr.New(tradeerr.ErrInsufficientAmount, "riskCheck",
			"batch needs %.2f, available cash is %.2f", cashNeeded, funds.AvailableCash)
	}
	return nil
}
