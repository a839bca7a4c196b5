// Package bridge composes cross-chain transfers.
package bridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/types"
)

// Request moves Amount of From on FromChain to To on ToChain for Owner
type Request struct {
	Owner     common.Address
	FromChain types.ChainID
	ToChain   types.ChainID
	From      model.TokenMetadata
	To        model.TokenMetadata
	Amount    *big.Int
	Prices    model.PriceTable
	Sink      progress.Sink
}

// Bridge builds the approval and deposit for one transfer
type Bridge interface {
	Name() string
	BridgeTxns(ctx context.Context, req Request) ([]model.Transaction, error)
}

// Transactions returns b's transactions, or none at all when anything fails
func Transactions(ctx context.Context, b Bridge, req Request) []model.Transaction {
	txs, err := b.BridgeTxns(ctx, req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"bridge": b.Name(),
			"from":   req.FromChain.String(),
			"to":     req.ToChain.String(),
			"token":  req.From.Symbol,
		}).WithError(err).Error("Bridge transaction build failed")
		return []model.Transaction{}
	}
	return txs
}
