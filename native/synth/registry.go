package synth

import "github.com/ethereum/go-ethereum/common"

// Registry is the immutable set of collateral assets the engine accepts,
// keyed by token identity. It is built once at construction and never
// reconfigured afterward.
type Registry struct {
	assets []CollateralAsset
	index  map[common.Address]int
}

// NewRegistry pairs the ordered token list with the ordered feed list.
// Mismatched lengths or duplicate token identities reject the configuration.
func NewRegistry(tokens, feeds []common.Address) (*Registry, error) {
	if len(tokens) != len(feeds) {
		return nil, ErrLengthMismatch
	}
	r := &Registry{
		assets: make([]CollateralAsset, 0, len(tokens)),
		index:  make(map[common.Address]int, len(tokens)),
	}
	for i, token := range tokens {
		if _, exists := r.index[token]; exists {
			return nil, ErrDuplicateAsset
		}
		r.index[token] = len(r.assets)
		r.assets = append(r.assets, CollateralAsset{Token: token, Feed: feeds[i]})
	}
	return r, nil
}

// Supports reports whether the token is an approved collateral asset.
func (r *Registry) Supports(token common.Address) bool {
	if r == nil {
		return false
	}
	_, ok := r.index[token]
	return ok
}

// Feed returns the oracle feed registered for the token.
func (r *Registry) Feed(token common.Address) (common.Address, bool) {
	if r == nil {
		return common.Address{}, false
	}
	i, ok := r.index[token]
	if !ok {
		return common.Address{}, false
	}
	return r.assets[i].Feed, true
}

// Assets returns the registered assets in registration order. The slice is a
// copy; mutating it does not affect the registry.
func (r *Registry) Assets() []CollateralAsset {
	if r == nil {
		return nil
	}
	return append([]CollateralAsset(nil), r.assets...)
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.assets)
}
