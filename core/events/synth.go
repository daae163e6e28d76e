package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"synthvault/core/types"
)

const (
	// TypeCollateralDeposited is emitted when collateral is locked in the engine.
	TypeCollateralDeposited = "synth.collateral.deposited"
	// TypeCollateralRedeemed is emitted when collateral leaves the engine,
	// either through a redemption or a liquidation seizure.
	TypeCollateralRedeemed = "synth.collateral.redeemed"
	// TypeDebtMinted is emitted when synthetic debt is minted against a position.
	TypeDebtMinted = "synth.debt.minted"
	// TypeDebtBurned is emitted when synthetic debt is repaid and burned.
	TypeDebtBurned = "synth.debt.burned"
	// TypePositionLiquidated is emitted after a successful liquidation.
	TypePositionLiquidated = "synth.position.liquidated"
)

type CollateralDeposited struct {
	Account common.Address
	Asset   common.Address
	Amount  *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{Type: TypeCollateralDeposited, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"asset":   formatAddress(e.Asset),
		"amount":  formatAmount(e.Amount),
	}}
}

type CollateralRedeemed struct {
	From   common.Address
	To     common.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Event() *types.Event {
	return &types.Event{Type: TypeCollateralRedeemed, Attributes: map[string]string{
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"asset":  formatAddress(e.Asset),
		"amount": formatAmount(e.Amount),
	}}
}

type DebtMinted struct {
	Account common.Address
	Amount  *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

func (e DebtMinted) Event() *types.Event {
	return &types.Event{Type: TypeDebtMinted, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}

type DebtBurned struct {
	Account common.Address
	Payer   common.Address
	Amount  *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

func (e DebtBurned) Event() *types.Event {
	return &types.Event{Type: TypeDebtBurned, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"payer":   formatAddress(e.Payer),
		"amount":  formatAmount(e.Amount),
	}}
}

type PositionLiquidated struct {
	Liquidator  common.Address
	Target      common.Address
	Asset       common.Address
	DebtCovered *big.Int
	Seized      *big.Int
}

func (PositionLiquidated) EventType() string { return TypePositionLiquidated }

func (e PositionLiquidated) Event() *types.Event {
	return &types.Event{Type: TypePositionLiquidated, Attributes: map[string]string{
		"liquidator":  formatAddress(e.Liquidator),
		"target":      formatAddress(e.Target),
		"asset":       formatAddress(e.Asset),
		"debtCovered": formatAmount(e.DebtCovered),
		"seized":      formatAmount(e.Seized),
	}}
}

func formatAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
