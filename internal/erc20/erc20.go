// Package erc20 builds token approvals and reads token balances.
package erc20

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/types"
)

// MaxAllowance is the unlimited approval amount
var MaxAllowance = new(big.Int).Set(math.MaxBig256)

// Approve builds approve(spender, amount) on token
func Approve(chainID types.ChainID, token, spender common.Address, amount *big.Int) (model.Transaction, error) {
	if amount == nil || amount.Sign() < 0 {
		return model.Transaction{}, fmt.Errorf("invalid approval amount %v", amount)
	}
	tx, err := chain.Build(chainID, token, chain.ERC20, "approve", spender, amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("approve %s for %s: %w", token.Hex(), spender.Hex(), err)
	}
	return tx, nil
}

// Allowance reads the current allowance granted by owner to spender
func Allowance(ctx context.Context, r chain.Reader, chainID types.ChainID, token, owner, spender common.Address) (*big.Int, error) {
	res, err := r.Call(ctx, chain.NewCall(chainID, token, chain.ERC20, "allowance", owner, spender))
	if err != nil {
		return nil, err
	}
	return res.Big(0), nil
}

// ApproveIfNeeded returns an approval only when the current allowance is below amount
func ApproveIfNeeded(ctx context.Context, r chain.Reader, chainID types.ChainID, token, owner, spender common.Address, amount *big.Int) ([]model.Transaction, error) {
	current, err := Allowance(ctx, r, chainID, token, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	if current.Cmp(amount) >= 0 {
		return nil, nil
	}
	tx, err := Approve(chainID, token, spender, amount)
	if err != nil {
		return nil, err
	}
	return []model.Transaction{tx}, nil
}

// BalanceOf reads an ERC20-compatible balance, including staking receipts and vault shares
func BalanceOf(ctx context.Context, r chain.Reader, chainID types.ChainID, token, owner common.Address) (*big.Int, error) {
	res, err := r.Call(ctx, chain.NewCall(chainID, token, chain.ERC20, "balanceOf", owner))
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return res.Big(0), nil
}

// TotalSupply reads totalSupply()
func TotalSupply(ctx context.Context, r chain.Reader, chainID types.ChainID, token common.Address) (*big.Int, error) {
	res, err := r.Call(ctx, chain.NewCall(chainID, token, chain.ERC20, "totalSupply"))
	if err != nil {
		return nil, fmt.Errorf("totalSupply %s: %w", token.Hex(), err)
	}
	return res.Big(0), nil
}
