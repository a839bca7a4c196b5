package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/types"
)

// Build ABI-encodes a contract call into an unsigned transaction
func Build(chain types.ChainID, to common.Address, abiName, method string, args ...interface{}) (model.Transaction, error) {
	data, err := Pack(abiName, method, args...)
	if err != nil {
		return model.Transaction{}, err
	}
	return model.Transaction{
		ChainID:     chain,
		To:          to,
		Data:        data,
		Description: abiName + "." + method,
	}, nil
}

// Raw wraps calldata produced elsewhere, such as by an aggregator API
func Raw(chain types.ChainID, to common.Address, data []byte, value *big.Int, description string) model.Transaction {
	tx := model.Transaction{
		ChainID:     chain,
		To:          to,
		Data:        common.CopyBytes(data),
		Description: description,
	}
	if value != nil && value.Sign() > 0 {
		tx.Value = new(big.Int).Set(value)
	}
	return tx
}

// WithExtraGas returns tx with an additional gas hint
func WithExtraGas(tx model.Transaction, gas uint64) model.Transaction {
	tx.ExtraGas = gas
	return tx
}
