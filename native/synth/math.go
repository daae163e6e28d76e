package synth

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	wad         = mustBigInt("1000000000000000000") // 1e18 fixed-point baseline
	// maxHealthFactor is the sentinel reported for debt-free positions. A
	// position with no debt cannot be liquidated regardless of collateral.
	maxHealthFactor = mustBigInt("115792089237316195423570985008687907853269984665640564039457584007913129639935")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// scaleToWad converts an oracle quote to 18-decimal fixed point. Prices with
// more than 18 decimals are truncated toward zero.
func scaleToWad(value *big.Int, decimals uint8) (*big.Int, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, ErrOraclePrice
	}
	if decimals == 18 {
		return new(big.Int).Set(value), nil
	}
	if decimals < 18 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return new(big.Int).Mul(value, factor), nil
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
	return new(big.Int).Quo(value, factor), nil
}

// usdValue prices a token amount using a wad price: amount * price / 1e18.
func usdValue(priceWad, amount *big.Int) *big.Int {
	if priceWad == nil || amount == nil {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(amount, priceWad)
	return value.Quo(value, wad)
}

// tokenAmountFromUsd converts a wad USD amount into token units at the given
// wad price: usd * 1e18 / price.
func tokenAmountFromUsd(priceWad, usdWad *big.Int) *big.Int {
	if priceWad == nil || priceWad.Sign() == 0 || usdWad == nil {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(usdWad, wad)
	return amount.Quo(amount, priceWad)
}

// healthFactor derives the solvency ratio in wad: threshold-adjusted
// collateral value divided by total debt, with 1e18 == minimum healthy.
func healthFactor(collateralUsd, debt *big.Int, thresholdBps uint64) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	if collateralUsd == nil || collateralUsd.Sign() <= 0 {
		return big.NewInt(0)
	}
	adjusted := new(big.Int).Mul(collateralUsd, new(big.Int).SetUint64(thresholdBps))
	adjusted.Quo(adjusted, basisPoints)
	adjusted.Mul(adjusted, wad)
	return adjusted.Quo(adjusted, debt)
}

// bonusAmount applies the liquidation bonus to a quoted collateral amount.
func bonusAmount(quoted *big.Int, bonusBps uint64) *big.Int {
	if quoted == nil || quoted.Sign() <= 0 || bonusBps == 0 {
		return big.NewInt(0)
	}
	bonus := new(big.Int).Mul(quoted, new(big.Int).SetUint64(bonusBps))
	return bonus.Quo(bonus, basisPoints)
}
