package synth

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"synthvault/storage"
)

// engineState abstracts the persistence layer the engine mutates. Every
// operation runs against a snapshot so a failure at any step rolls the ledger
// back to the state before the operation started.
type engineState interface {
	GetPosition(addr common.Address) (*Position, error)
	PutPosition(position *Position) error
	Snapshot() int
	RevertToSnapshot(id int) error
	Commit()
}

var positionPrefix = []byte("synth/position/")

// storedPosition is the RLP stored form. Collateral entries are sorted by
// token identity so encoding stays deterministic.
type storedPosition struct {
	Account    common.Address
	Collateral []storedCollateral
	Debt       *big.Int
}

type storedCollateral struct {
	Token  common.Address
	Amount *big.Int
}

// PositionStore persists positions in a key-value database and journals every
// write so in-flight operations can be reverted wholesale.
type PositionStore struct {
	db      storage.Database
	journal []journalEntry
}

type journalEntry struct {
	account common.Address
	prev    *Position
	existed bool
}

// NewPositionStore wraps the database with position codec and journaling.
func NewPositionStore(db storage.Database) *PositionStore {
	return &PositionStore{db: db}
}

func positionKey(addr common.Address) []byte {
	return append(append([]byte(nil), positionPrefix...), addr.Bytes()...)
}

// GetPosition loads a position, returning nil when the account has never been
// seen. Callers own the returned value.
func (s *PositionStore) GetPosition(addr common.Address) (*Position, error) {
	raw, err := s.db.Get(positionKey(addr))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("synth state: load position: %w", err)
	}
	var stored storedPosition
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("synth state: decode position: %w", err)
	}
	position := &Position{
		Account:    stored.Account,
		Collateral: make(map[common.Address]*big.Int, len(stored.Collateral)),
		DebtMinted: stored.Debt,
	}
	for _, entry := range stored.Collateral {
		if entry.Amount != nil {
			position.Collateral[entry.Token] = entry.Amount
		}
	}
	return position, nil
}

// PutPosition writes the position and records the previous value in the
// journal for potential rollback.
func (s *PositionStore) PutPosition(position *Position) error {
	if position == nil {
		return nil
	}
	prev, err := s.GetPosition(position.Account)
	if err != nil {
		return err
	}
	s.journal = append(s.journal, journalEntry{
		account: position.Account,
		prev:    prev.Clone(),
		existed: prev != nil,
	})
	return s.write(position)
}

func (s *PositionStore) write(position *Position) error {
	stored := storedPosition{Account: position.Account, Debt: position.DebtMinted}
	if stored.Debt == nil {
		stored.Debt = big.NewInt(0)
	}
	tokens := make([]common.Address, 0, len(position.Collateral))
	for token := range position.Collateral {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Cmp(tokens[j]) < 0
	})
	for _, token := range tokens {
		amount := position.Collateral[token]
		if amount == nil {
			amount = big.NewInt(0)
		}
		stored.Collateral = append(stored.Collateral, storedCollateral{Token: token, Amount: amount})
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("synth state: encode position: %w", err)
	}
	return s.db.Put(positionKey(position.Account), encoded)
}

// Snapshot marks the current journal depth. Passing the returned id to
// RevertToSnapshot undoes every write made after this point.
func (s *PositionStore) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot rolls the store back to a snapshot taken earlier in the
// same operation.
func (s *PositionStore) RevertToSnapshot(id int) error {
	if id < 0 || id > len(s.journal) {
		return fmt.Errorf("synth state: invalid snapshot id %d", id)
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		entry := s.journal[i]
		if !entry.existed {
			if err := s.db.Delete(positionKey(entry.account)); err != nil {
				return fmt.Errorf("synth state: revert position: %w", err)
			}
			continue
		}
		if err := s.write(entry.prev); err != nil {
			return err
		}
	}
	s.journal = s.journal[:id]
	return nil
}

// Commit finalises the writes made since the last snapshot and resets the
// journal. Operations are serialized, so there is never more than one
// in-flight snapshot window.
func (s *PositionStore) Commit() {
	s.journal = s.journal[:0]
}
