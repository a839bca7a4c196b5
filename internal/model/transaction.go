package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/yourorg/vault-bff/internal/types"
)

// Transaction is an unsigned contract call. Lists of transactions are ordered:
// approvals precede the calls that consume them.
type Transaction struct {
	ChainID  types.ChainID  `json:"chainId"`
	To       common.Address `json:"to"`
	Data     hexutil.Bytes  `json:"data"`
	Value    *big.Int       `json:"value,omitempty"`
	ExtraGas uint64         `json:"extraGas,omitempty"`
	// Description is "<contract>.<method>" for logs and the terminal client
	Description string `json:"description,omitempty"`
}

// Method returns the 4-byte selector of the calldata, or nil
func (t Transaction) Method() []byte {
	if len(t.Data) < 4 {
		return nil
	}
	return t.Data[:4]
}

// SwapQuote is a normalized quote from one swap aggregator.
type SwapQuote struct {
	Provider     string         `json:"provider"`
	ToAmount     *big.Int       `json:"toAmount"`
	MinToAmount  *big.Int       `json:"minToAmount"`
	GasCostUSD   float64        `json:"gasCostUSD"`
	ToUSD        float64        `json:"toUsd"`
	ApproveTo    common.Address `json:"approveTo"`
	Transactions []Transaction  `json:"transactions"`
}
