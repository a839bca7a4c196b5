// Package protocol defines the capability interfaces every yield venue adapter implements,
// plus the arithmetic and bookkeeping helpers they share.
package protocol

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

var (
	// ErrMissingParam is returned by constructors when a required parameter is unset
	ErrMissingParam = errors.New("missing adapter parameter")
	// ErrNoLiquidity is returned when a pool has an empty reserve
	ErrNoLiquidity = errors.New("Pool has no liquidity")
	// ErrNotImplemented is returned when a venue has no pricing path for the configured pool
	ErrNotImplemented = errors.New("Not implemented")
	// ErrNoPosition is returned when an operation needs a position the owner does not hold
	ErrNoPosition = errors.New("no position for owner")
	// ErrInvalidPercentage is returned for unstake percentages outside [0,1]
	ErrInvalidPercentage = errors.New("percentage must be within [0, 1]")
)

// Adapter is implemented by every venue
type Adapter interface {
	UniqueID() string
	Name() string
	Chain() types.ChainID
	// Rewards lists the configured reward tokens. It performs no I/O.
	Rewards() []model.TokenMetadata
	PendingRewards(ctx context.Context, owner common.Address, prices model.PriceTable, sink progress.Sink) (model.Rewards, error)
	USDBalanceOf(ctx context.Context, owner common.Address, prices model.PriceTable) (float64, error)
	AssetUSDPrice(ctx context.Context, prices model.PriceTable) (float64, error)
	Claim(ctx context.Context, owner common.Address, prices model.PriceTable, sink progress.Sink) ([]model.Transaction, model.Rewards, error)
	Stake(ctx context.Context, amount *big.Int) ([]model.Transaction, error)
	Unstake(ctx context.Context, owner common.Address, percentage float64) (UnstakeResult, error)
	LockUpPeriod(ctx context.Context, owner common.Address) (time.Duration, error)
}

// LPAdapter is implemented by two-token liquidity venues
type LPAdapter interface {
	Adapter
	LPTokens() [2]model.TokenMetadata
	// TokenAmountsForLP returns the pool ratio as normalized token amounts
	TokenAmountsForLP(ctx context.Context, usdAmount float64, prices model.PriceTable) ([]float64, error)
	DepositLP(ctx context.Context, req DepositLPRequest) ([]model.Transaction, error)
	WithdrawLPAndClaim(ctx context.Context, req WithdrawRequest) (WithdrawResult, error)
}

// SingleAdapter is implemented by single-token venues
type SingleAdapter interface {
	Adapter
	// ZapInToken returns the token the venue wants to receive for the given input
	ZapInToken(input model.TokenMetadata) model.TokenMetadata
	ZapOutToken() model.TokenMetadata
	Deposit(ctx context.Context, req DepositRequest) ([]model.Transaction, error)
	WithdrawAndClaim(ctx context.Context, req WithdrawRequest) (WithdrawResult, error)
}

// Leg is a token amount in smallest units
type Leg struct {
	Token  model.TokenMetadata
	Amount *big.Int
}

// DepositLPRequest carries both legs of a liquidity deposit
type DepositLPRequest struct {
	Owner    common.Address
	TokenA   Leg
	TokenB   Leg
	Prices   model.PriceTable
	Slippage float64
	Sink     progress.Sink
}

// DepositRequest carries a single-token deposit
type DepositRequest struct {
	Owner common.Address
	// Input is the token the user originally supplied, used to price the deposit
	Input    model.TokenMetadata
	Leg      Leg
	Prices   model.PriceTable
	Slippage float64
	Sink     progress.Sink
}

// WithdrawRequest withdraws Amount of the venue's position token
type WithdrawRequest struct {
	Owner    common.Address
	Amount   *big.Int
	Slippage float64
	Prices   model.PriceTable
	Sink     progress.Sink
}

// WithdrawResult lists the transactions plus the tokens they release and their minimums
type WithdrawResult struct {
	Transactions []model.Transaction
	Tokens       []model.TokenMetadata
	MinAmounts   []*big.Int
}

// UnstakeResult is the unstake transactions and the position amount they release.
// Amount is nil when the owner has no position.
type UnstakeResult struct {
	Transactions []model.Transaction
	Amount       *big.Int
}

// Deps are the collaborators shared by every adapter
type Deps struct {
	Reader   chain.Reader
	Registry *registry.Registry
	Now      func() time.Time
}

// Clock returns Now or time.Now
func (d Deps) Clock() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Base carries the identity fields shared by adapters
type Base struct {
	Protocol string
	Version  string
	ChainID  types.ChainID
	Symbols  []string
}

// UniqueID is "<chain>/<protocol>/<version>/<symbols>"
func (b Base) UniqueID() string {
	return b.ChainID.String() + "/" + b.Protocol + "/" + b.Version + "/" + strings.Join(b.Symbols, "-")
}

// Name returns the protocol name
func (b Base) Name() string { return b.Protocol }

// Chain returns the chain the adapter operates on
func (b Base) Chain() types.ChainID { return b.ChainID }
