package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthvault/native/synth"
)

// ErrUnknownFeed indicates a price was requested for a feed that has never
// been seeded.
var ErrUnknownFeed = errors.New("oracle: unknown feed")

// ErrInvalidPrice rejects zero or negative price updates at the adapter
// boundary before they reach the engine.
var ErrInvalidPrice = errors.New("oracle: price must be positive")

// StaticFeed is an operator-seeded price source. Prices are set explicitly and
// served unchanged until the next update, which makes it the reference
// adapter for tests and single-operator deployments. Staleness and deviation
// checks belong here, not in the engine; StaticFeed performs none beyond
// rejecting non-positive values.
type StaticFeed struct {
	mu       sync.RWMutex
	decimals uint8
	override map[common.Address]uint8
	quotes   map[common.Address]synth.PriceQuote
	now      func() time.Time
}

// NewStaticFeed constructs an empty feed serving prices at the given default
// decimal precision.
func NewStaticFeed(decimals uint8) *StaticFeed {
	return &StaticFeed{
		decimals: decimals,
		override: make(map[common.Address]uint8),
		quotes:   make(map[common.Address]synth.PriceQuote),
		now:      time.Now,
	}
}

// Register pins a feed to a decimal precision different from the default.
func (f *StaticFeed) Register(feed common.Address, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override[feed] = decimals
}

// SetPrice records the latest price for the feed in the feed's native
// decimals.
func (f *StaticFeed) SetPrice(feed common.Address, value *big.Int) error {
	if value == nil || value.Sign() <= 0 {
		return ErrInvalidPrice
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	decimals := f.decimals
	if pinned, ok := f.override[feed]; ok {
		decimals = pinned
	}
	f.quotes[feed] = synth.PriceQuote{
		Value:    new(big.Int).Set(value),
		Decimals: decimals,
		AsOf:     f.now(),
	}
	return nil
}

// LatestPrice returns the most recent quote for the feed.
func (f *StaticFeed) LatestPrice(feed common.Address) (synth.PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	quote, ok := f.quotes[feed]
	if !ok {
		return synth.PriceQuote{}, ErrUnknownFeed
	}
	clone := synth.PriceQuote{Decimals: quote.Decimals, AsOf: quote.AsOf}
	if quote.Value != nil {
		clone.Value = new(big.Int).Set(quote.Value)
	}
	return clone, nil
}
