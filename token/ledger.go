package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"synthvault/storage"
)

var (
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInvalidAmount is returned for nil, zero, or negative amounts.
	ErrInvalidAmount = errors.New("token: amount must be positive")
)

// Ledger is a minimal balance ledger for a single asset, persisted in a
// key-value database. It implements the transfer surfaces the engine expects
// from collateral and debt token contracts, with the engine's module address
// acting as the ledger operator: Transfer and Burn act on the operator's own
// holdings, matching a contract that moves its caller's balance.
type Ledger struct {
	mu       sync.Mutex
	db       storage.Database
	symbol   string
	operator common.Address
}

// NewLedger binds a token ledger for symbol to the database. operator is the
// identity whose balance Transfer and Burn act upon.
func NewLedger(db storage.Database, symbol string, operator common.Address) *Ledger {
	return &Ledger{db: db, symbol: symbol, operator: operator}
}

func (l *Ledger) balanceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("token/%s/balance/%x", l.symbol, addr.Bytes()))
}

func (l *Ledger) supplyKey() []byte {
	return []byte(fmt.Sprintf("token/%s/supply", l.symbol))
}

func (l *Ledger) load(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if err != nil {
		if err == storage.ErrNotFound {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("token ledger: load: %w", err)
	}
	var value big.Int
	if err := rlp.DecodeBytes(raw, &value); err != nil {
		return nil, fmt.Errorf("token ledger: decode: %w", err)
	}
	return &value, nil
}

func (l *Ledger) store(key []byte, value *big.Int) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("token ledger: encode: %w", err)
	}
	return l.db.Put(key, encoded)
}

// BalanceOf returns the current balance for the address.
func (l *Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(l.balanceKey(addr))
}

// TotalSupply returns the amount of the asset currently in circulation.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(l.supplyKey())
}

// Mint credits freshly created units to the recipient.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, err := l.load(l.balanceKey(to))
	if err != nil {
		return err
	}
	supply, err := l.load(l.supplyKey())
	if err != nil {
		return err
	}
	if err := l.store(l.balanceKey(to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.store(l.supplyKey(), new(big.Int).Add(supply, amount))
}

// Burn destroys units held by the operator and shrinks total supply.
func (l *Ledger) Burn(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, err := l.load(l.balanceKey(l.operator))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.load(l.supplyKey())
	if err != nil {
		return err
	}
	if err := l.store(l.balanceKey(l.operator), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	newSupply := new(big.Int).Sub(supply, amount)
	if newSupply.Sign() < 0 {
		newSupply = big.NewInt(0)
	}
	return l.store(l.supplyKey(), newSupply)
}

// Transfer moves units from the operator's holdings to the recipient.
func (l *Ledger) Transfer(to common.Address, amount *big.Int) error {
	return l.TransferFrom(l.operator, to, amount)
}

// TransferFrom moves units between two holders.
func (l *Ledger) TransferFrom(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance, err := l.load(l.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := l.load(l.balanceKey(to))
	if err != nil {
		return err
	}
	if err := l.store(l.balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.store(l.balanceKey(to), new(big.Int).Add(toBalance, amount))
}
