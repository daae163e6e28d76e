package oracle

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLatestPriceUnknownFeed(t *testing.T) {
	feed := NewStaticFeed(8)
	if _, err := feed.LatestPrice(common.BytesToAddress([]byte{0x01})); !errors.Is(err, ErrUnknownFeed) {
		t.Fatalf("expected ErrUnknownFeed, got %v", err)
	}
}

func TestSetPriceRejectsNonPositive(t *testing.T) {
	feed := NewStaticFeed(8)
	addr := common.BytesToAddress([]byte{0x01})
	if err := feed.SetPrice(addr, big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for zero, got %v", err)
	}
	if err := feed.SetPrice(addr, nil); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for nil, got %v", err)
	}
}

func TestSetPriceServesLatestQuote(t *testing.T) {
	feed := NewStaticFeed(8)
	addr := common.BytesToAddress([]byte{0x01})

	if err := feed.SetPrice(addr, big.NewInt(2_000_00000000)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	quote, err := feed.LatestPrice(addr)
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if quote.Value.Cmp(big.NewInt(2_000_00000000)) != 0 || quote.Decimals != 8 {
		t.Fatalf("unexpected quote: %+v", quote)
	}
	if quote.AsOf.IsZero() {
		t.Fatalf("expected quote timestamp")
	}

	if err := feed.SetPrice(addr, big.NewInt(1_500_00000000)); err != nil {
		t.Fatalf("update price: %v", err)
	}
	quote, err = feed.LatestPrice(addr)
	if err != nil {
		t.Fatalf("latest price after update: %v", err)
	}
	if quote.Value.Cmp(big.NewInt(1_500_00000000)) != 0 {
		t.Fatalf("stale quote served: %s", quote.Value)
	}
}

func TestLatestPriceReturnsCopy(t *testing.T) {
	feed := NewStaticFeed(8)
	addr := common.BytesToAddress([]byte{0x01})
	if err := feed.SetPrice(addr, big.NewInt(100)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	quote, err := feed.LatestPrice(addr)
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	quote.Value.SetInt64(-1)

	again, err := feed.LatestPrice(addr)
	if err != nil {
		t.Fatalf("latest price again: %v", err)
	}
	if again.Value.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("caller mutation leaked into the feed: %s", again.Value)
	}
}

func TestRegisterPinsDecimals(t *testing.T) {
	feed := NewStaticFeed(8)
	pinned := common.BytesToAddress([]byte{0x01})
	plain := common.BytesToAddress([]byte{0x02})
	feed.Register(pinned, 18)

	if err := feed.SetPrice(pinned, big.NewInt(1)); err != nil {
		t.Fatalf("set pinned price: %v", err)
	}
	if err := feed.SetPrice(plain, big.NewInt(1)); err != nil {
		t.Fatalf("set plain price: %v", err)
	}

	quote, err := feed.LatestPrice(pinned)
	if err != nil {
		t.Fatalf("latest pinned: %v", err)
	}
	if quote.Decimals != 18 {
		t.Fatalf("expected pinned decimals 18, got %d", quote.Decimals)
	}
	quote, err = feed.LatestPrice(plain)
	if err != nil {
		t.Fatalf("latest plain: %v", err)
	}
	if quote.Decimals != 8 {
		t.Fatalf("expected default decimals 8, got %d", quote.Decimals)
	}
}
