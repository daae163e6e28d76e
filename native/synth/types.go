package synth

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralAsset pairs an approved collateral token with the oracle feed that
// prices it. The set of assets is fixed at construction time.
type CollateralAsset struct {
	// Token is the on-ledger identity of the collateral asset.
	Token common.Address
	// Feed identifies the oracle price source for the asset.
	Feed common.Address
}

// Position maintains the collateral and minted debt for a single account.
// Zero-valued positions are valid and persistent; positions are never deleted.
type Position struct {
	// Account is the unique identity the position belongs to.
	Account common.Address
	// Collateral records the deposited amount per registered asset.
	Collateral map[common.Address]*big.Int
	// DebtMinted stores the outstanding synthetic debt in wad.
	DebtMinted *big.Int
}

// CollateralOf returns the deposited balance for the asset, zero when the
// account never touched it.
func (p *Position) CollateralOf(asset common.Address) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	if amount, ok := p.Collateral[asset]; ok && amount != nil {
		return amount
	}
	return big.NewInt(0)
}

// Clone returns a deep copy so callers cannot mutate shared ledger state.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Account: p.Account, Collateral: make(map[common.Address]*big.Int, len(p.Collateral))}
	for asset, amount := range p.Collateral {
		if amount != nil {
			clone.Collateral[asset] = new(big.Int).Set(amount)
		}
	}
	if p.DebtMinted != nil {
		clone.DebtMinted = new(big.Int).Set(p.DebtMinted)
	}
	return clone
}

// PriceQuote is the raw answer returned by an oracle feed.
type PriceQuote struct {
	// Value is the USD price expressed in the feed's native decimals.
	Value *big.Int
	// Decimals is the fixed-point precision of Value.
	Decimals uint8
	// AsOf is the timestamp reported by the upstream feed. The engine does
	// not validate freshness; that responsibility sits with the adapter.
	AsOf time.Time
}

// PriceOracle resolves the latest USD price for a registered oracle feed.
type PriceOracle interface {
	LatestPrice(feed common.Address) (PriceQuote, error)
}

// Collateral is the external collateral asset contract surface the engine
// depends on. A returned error fails the enclosing operation.
type Collateral interface {
	TransferFrom(from, to common.Address, amount *big.Int) error
	Transfer(to common.Address, amount *big.Int) error
}

// DebtToken mints and burns the pegged synthetic asset.
type DebtToken interface {
	Mint(to common.Address, amount *big.Int) error
	Burn(amount *big.Int) error
	TransferFrom(from, to common.Address, amount *big.Int) error
}

// RiskParameters groups the safety limits enforced by the engine.
type RiskParameters struct {
	// LiquidationThresholdBps is the fraction of raw collateral value counted
	// toward solvency, expressed in basis points. 5000 encodes a 200% minimum
	// collateralization ratio.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the extra collateral awarded to a liquidator
	// beyond the quoted debt-equivalent amount, expressed in basis points.
	LiquidationBonusBps uint64
}

// DefaultRiskParameters returns the protocol defaults: a 50% liquidation
// threshold and a 10% liquidation bonus.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		LiquidationThresholdBps: 5_000,
		LiquidationBonusBps:     1_000,
	}
}
