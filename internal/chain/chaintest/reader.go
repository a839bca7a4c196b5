// Package chaintest provides an in-memory chain.Reader for tests.
package chaintest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/chain"
)

// Reader answers calls from canned results keyed by method and contract.
// Results registered with specific arguments take precedence.
type Reader struct {
	mu      sync.Mutex
	results map[string]chain.Result
	errs    map[string]error
	calls   map[string]int
}

// New returns an empty fake reader
func New() *Reader {
	return &Reader{
		results: make(map[string]chain.Result),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func key(contract common.Address, method string) string {
	return method + "@" + strings.ToLower(contract.Hex())
}

func argKey(contract common.Address, method string, args []interface{}) string {
	return key(contract, method) + fmt.Sprint(args)
}

// Set registers return values for any call of method on contract
func (r *Reader) Set(contract common.Address, method string, values ...interface{}) *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[key(contract, method)] = chain.Result(values)
	return r
}

// SetWithArgs registers return values for one argument list
func (r *Reader) SetWithArgs(contract common.Address, method string, args []interface{}, values ...interface{}) *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[argKey(contract, method, args)] = chain.Result(values)
	return r
}

// Fail makes every call of method on contract return err
func (r *Reader) Fail(contract common.Address, method string, err error) *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[key(contract, method)] = err
	return r
}

// Clear removes a failure registered with Fail
func (r *Reader) Clear(contract common.Address, method string) *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.errs, key(contract, method))
	return r
}

// Call implements chain.Reader
func (r *Reader) Call(ctx context.Context, c chain.Call) (chain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(c.Contract, c.Method)
	r.calls[k]++
	if err, ok := r.errs[k]; ok {
		return nil, err
	}
	if res, ok := r.results[argKey(c.Contract, c.Method, c.Args)]; ok {
		return res, nil
	}
	if res, ok := r.results[k]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("chaintest: no result for %s", c.Key())
}

// Calls reports how many times method was called on contract
func (r *Reader) Calls(contract common.Address, method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key(contract, method)]
}
