package camelot

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/chain"
)

var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

type position struct {
	id        *big.Int
	token0    common.Address
	token1    common.Address
	tickLower int64
	tickUpper int64
	liquidity *big.Int
	owed0     *big.Int
	owed1     *big.Int
}

func (a *Adapter) readPosition(ctx context.Context, id *big.Int) (position, error) {
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.manager, chain.CamelotNFTManager, "positions", id))
	if err != nil {
		return position{}, err
	}
	return position{
		id:        new(big.Int).Set(id),
		token0:    res.Address(2),
		token1:    res.Address(3),
		tickLower: res.Big(4).Int64(),
		tickUpper: res.Big(5).Int64(),
		liquidity: res.Big(6),
		owed0:     res.Big(9),
		owed1:     res.Big(10),
	}, nil
}

func (a *Adapter) matches(p position) bool {
	return p.tickLower == a.params.TickLower &&
		p.tickUpper == a.params.TickUpper &&
		p.token0 == a.lpTokens[0].Address &&
		p.token1 == a.lpTokens[1].Address
}

// resolvePosition returns the owner's position for the configured range.
// A cached id whose positions() read fails is dropped and discovery runs again.
func (a *Adapter) resolvePosition(ctx context.Context, owner common.Address) (position, bool, error) {
	if id, ok := a.positions.Get(owner); ok {
		pos, err := a.readPosition(ctx, id)
		if err == nil {
			return pos, true, nil
		}
		logrus.WithFields(logrus.Fields{
			"adapter":  a.UniqueID(),
			"owner":    owner.Hex(),
			"token_id": id.String(),
			"error":    err,
		}).Warn("Cached Camelot position is stale, rediscovering")
		a.positions.Invalidate(owner)
	}

	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.manager, chain.CamelotNFTManager, "balanceOf", owner))
	if err != nil {
		return position{}, false, fmt.Errorf("camelot position count: %w", err)
	}
	count := res.Big(0)
	limit := int64(maxScannedPositions)
	if count.IsInt64() && count.Int64() < limit {
		limit = count.Int64()
	}

	for i := int64(0); i < limit; i++ {
		res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.manager, chain.CamelotNFTManager, "tokenOfOwnerByIndex", owner, big.NewInt(i)))
		if err != nil {
			return position{}, false, fmt.Errorf("camelot tokenOfOwnerByIndex %d: %w", i, err)
		}
		pos, err := a.readPosition(ctx, res.Big(0))
		if err != nil {
			return position{}, false, fmt.Errorf("camelot positions: %w", err)
		}
		if a.matches(pos) {
			a.positions.Set(owner, pos.id)
			return pos, true, nil
		}
	}
	return position{}, false, nil
}

func sqrtTickPrice(tick int64) float64 {
	return math.Pow(1.0001, float64(tick)/2)
}

// amountsForLiquidity returns the raw token amounts backing liquidity over
// [tickLower, tickUpper] at the pool's current sqrt price
func amountsForLiquidity(sqrtPriceX96 *big.Int, tickLower, tickUpper int64, liquidity *big.Int) (*big.Int, *big.Int) {
	if liquidity == nil || liquidity.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	sqrtP, _ := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96).Float64()
	amount0, amount1 := liquidityAmounts(sqrtP, sqrtTickPrice(tickLower), sqrtTickPrice(tickUpper))
	l := new(big.Float).SetInt(liquidity)
	out0, _ := new(big.Float).Mul(l, big.NewFloat(amount0)).Int(nil)
	out1, _ := new(big.Float).Mul(l, big.NewFloat(amount1)).Int(nil)
	return out0, out1
}

// liquidityAmounts returns the amounts per unit of liquidity
func liquidityAmounts(sqrtP, sqrtA, sqrtB float64) (float64, float64) {
	switch {
	case sqrtP <= sqrtA:
		return (sqrtB - sqrtA) / (sqrtA * sqrtB), 0
	case sqrtP >= sqrtB:
		return 0, sqrtB - sqrtA
	default:
		return (sqrtB - sqrtP) / (sqrtP * sqrtB), sqrtP - sqrtA
	}
}

// rangeRatio returns normalized amounts of token0 and token1 for one unit of
// liquidity, given price as token1 per token0 in whole tokens
func rangeRatio(price float64, tickLower, tickUpper int64, dec0, dec1 uint8) (float64, float64) {
	scale := math.Pow(10, float64(int(dec0)-int(dec1)))
	sqrtA := math.Sqrt(math.Pow(1.0001, float64(tickLower)) * scale)
	sqrtB := math.Sqrt(math.Pow(1.0001, float64(tickUpper)) * scale)
	return liquidityAmounts(math.Sqrt(price), sqrtA, sqrtB)
}
