package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPortfolioNotFound aborts a recompute; nothing can be loaded for the portfolio
	ErrPortfolioNotFound = errors.New("portfolio not found")
	// ErrTradeNotFound is returned when deleting or fetching a missing trade
	ErrTradeNotFound = errors.New("trade not found")
	// ErrTransferNotFound is returned when deleting or fetching a missing transfer
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrInvalidInput wraps every validation failure
	ErrInvalidInput = errors.New("invalid input")
)

// PriceUnavailableError reports a symbol the price oracle could not value.
// It is recoverable: the symbol is valued at its average cost instead.
type PriceUnavailableError struct {
	Symbol string
	Cause  error
}

func (e *PriceUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("price unavailable for %s: %v", e.Symbol, e.Cause)
	}
	return fmt.Sprintf("price unavailable for %s", e.Symbol)
}

func (e *PriceUnavailableError) Unwrap() error {
	return e.Cause
}
