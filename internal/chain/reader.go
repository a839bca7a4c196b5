package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/types"
	"golang.org/x/sync/errgroup"
)

// Call describes a read-only contract call
type Call struct {
	Chain    types.ChainID
	Contract common.Address
	ABI      string
	Method   string
	Args     []interface{}
}

// NewCall is shorthand for building a Call
func NewCall(chain types.ChainID, contract common.Address, abiName, method string, args ...interface{}) Call {
	return Call{Chain: chain, Contract: contract, ABI: abiName, Method: method, Args: args}
}

// Key identifies the call target as "<method>@<lower-case address>"
func (c Call) Key() string {
	return c.Method + "@" + strings.ToLower(c.Contract.Hex())
}

// Reader executes read-only contract calls
type Reader interface {
	Call(ctx context.Context, call Call) (Result, error)
}

// CallBatch runs calls concurrently. The batch fails as a whole if any call fails.
func CallBatch(ctx context.Context, r Reader, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i := range calls {
		i := i
		g.Go(func() error {
			res, err := r.Call(gctx, calls[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// EthReader performs calls against JSON-RPC endpoints, one caller per chain
type EthReader struct {
	callers map[types.ChainID]bind.ContractCaller
}

// NewEthReader wraps existing contract callers
func NewEthReader(callers map[types.ChainID]bind.ContractCaller) *EthReader {
	return &EthReader{callers: callers}
}

// Dial connects to every endpoint. The returned func closes all clients.
func Dial(ctx context.Context, endpoints map[types.ChainID]string) (*EthReader, func(), error) {
	callers := make(map[types.ChainID]bind.ContractCaller, len(endpoints))
	clients := make([]*ethclient.Client, 0, len(endpoints))
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}
	for chain, url := range endpoints {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("dial %s rpc: %w", chain, err)
		}
		clients = append(clients, client)
		callers[chain] = client
		logrus.WithFields(logrus.Fields{"chain": chain.String()}).Info("RPC client connected")
	}
	return NewEthReader(callers), closeAll, nil
}

// Call packs, executes and unpacks a contract call at the latest block
func (r *EthReader) Call(ctx context.Context, c Call) (Result, error) {
	caller, ok := r.callers[c.Chain]
	if !ok {
		return nil, fmt.Errorf("no rpc configured for chain %s", c.Chain)
	}
	data, err := Pack(c.ABI, c.Method, c.Args...)
	if err != nil {
		return nil, err
	}
	to := c.Contract
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", c.Key(), c.Chain, err)
	}
	return Unpack(c.ABI, c.Method, out)
}

// Result holds the decoded return values of a call
type Result []interface{}

// Big returns output i as a big integer, or zero when absent
func (r Result) Big(i int) *big.Int {
	if i < len(r) {
		if v, ok := r[i].(*big.Int); ok && v != nil {
			return new(big.Int).Set(v)
		}
		switch v := r[i].(type) {
		case uint8:
			return new(big.Int).SetUint64(uint64(v))
		case uint16:
			return new(big.Int).SetUint64(uint64(v))
		case uint32:
			return new(big.Int).SetUint64(uint64(v))
		case uint64:
			return new(big.Int).SetUint64(v)
		}
	}
	return new(big.Int)
}

// Address returns output i as an address
func (r Result) Address(i int) common.Address {
	if i < len(r) {
		if v, ok := r[i].(common.Address); ok {
			return v
		}
	}
	return common.Address{}
}

// Bool returns output i as a bool
func (r Result) Bool(i int) bool {
	if i < len(r) {
		if v, ok := r[i].(bool); ok {
			return v
		}
	}
	return false
}

// Bigs returns output i as a slice of big integers
func (r Result) Bigs(i int) []*big.Int {
	if i < len(r) {
		if v, ok := r[i].([]*big.Int); ok {
			return v
		}
	}
	return nil
}

// Addresses returns output i as a slice of addresses
func (r Result) Addresses(i int) []common.Address {
	if i < len(r) {
		if v, ok := r[i].([]common.Address); ok {
			return v
		}
	}
	return nil
}
