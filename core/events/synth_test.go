package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCollateralDepositedAttributes(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	asset := common.HexToAddress("0x00000000000000000000000000000000000000Bb")
	evt := CollateralDeposited{Account: account, Asset: asset, Amount: big.NewInt(42)}

	if evt.EventType() != TypeCollateralDeposited {
		t.Fatalf("unexpected type: %s", evt.EventType())
	}
	payload := evt.Event()
	if payload.Type != TypeCollateralDeposited {
		t.Fatalf("unexpected payload type: %s", payload.Type)
	}
	if payload.Attributes["account"] != "0x00000000000000000000000000000000000000aa" {
		t.Fatalf("expected lowercase account, got %s", payload.Attributes["account"])
	}
	if payload.Attributes["amount"] != "42" {
		t.Fatalf("unexpected amount: %s", payload.Attributes["amount"])
	}
}

func TestPositionLiquidatedAttributes(t *testing.T) {
	evt := PositionLiquidated{
		Liquidator:  common.BytesToAddress([]byte{0x01}),
		Target:      common.BytesToAddress([]byte{0x02}),
		Asset:       common.BytesToAddress([]byte{0x03}),
		DebtCovered: big.NewInt(5000),
		Seized:      big.NewInt(5500),
	}
	payload := evt.Event()
	if payload.Attributes["debtCovered"] != "5000" || payload.Attributes["seized"] != "5500" {
		t.Fatalf("unexpected amounts: %+v", payload.Attributes)
	}
}

func TestNilAmountFormatsAsZero(t *testing.T) {
	evt := DebtBurned{}
	if got := evt.Event().Attributes["amount"]; got != "0" {
		t.Fatalf("expected zero for nil amount, got %s", got)
	}
}
