package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxSlippage is the largest slippage percentage a request may ask for
const MaxSlippage = 50.0

var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidSlippage   = errors.New("invalid slippage")
	ErrInvalidPercentage = errors.New("invalid percentage")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Address parses a hex address, rejecting the zero address
func Address(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return addr, nil
}

// Slippage accepts percentages in [0, MaxSlippage]
func Slippage(s float64) error {
	if math.IsNaN(s) || s < 0 || s > MaxSlippage {
		return fmt.Errorf("%w: %.2f%% (allowed 0-%.0f%%)", ErrInvalidSlippage, s, MaxSlippage)
	}
	return nil
}

// Percentage accepts withdrawal fractions in (0, 1]
func Percentage(p float64) error {
	if math.IsNaN(p) || p <= 0 || p > 1 {
		return fmt.Errorf("%w: %v (allowed (0, 1])", ErrInvalidPercentage, p)
	}
	return nil
}

// USDAmount accepts positive finite amounts
func USDAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, v)
	}
	return nil
}
