package synth

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"

	"synthvault/storage"
)

// Audit record kinds persisted by the engine.
const (
	AuditKindDeposit     = "deposit"
	AuditKindRedemption  = "redemption"
	AuditKindLiquidation = "liquidation"
)

var (
	auditRecordPrefix = []byte("synth/audit/record/")
	auditHeadKey      = []byte("synth/audit/head")
)

// AuditRecord captures one append-only entry of the engine's observable
// trail. Ordering matches operation order.
type AuditRecord struct {
	ID           string
	Kind         string
	Account      common.Address
	Counterparty common.Address
	Asset        common.Address
	Amount       *big.Int
	DebtCovered  *big.Int
	CreatedAt    int64
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (r *AuditRecord) Copy() *AuditRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	if r.DebtCovered != nil {
		clone.DebtCovered = new(big.Int).Set(r.DebtCovered)
	}
	return &clone
}

type storedAuditRecord struct {
	ID           string
	Kind         string
	Account      common.Address
	Counterparty common.Address
	Asset        common.Address
	Amount       *big.Int
	DebtCovered  *big.Int
	CreatedAt    uint64
}

// AuditTrail is the append-only record store backing the engine's audit
// events. Records are keyed by a monotonic sequence number.
type AuditTrail struct {
	mu  sync.Mutex
	db  storage.Database
	now func() time.Time
}

// NewAuditTrail binds the trail to a key-value database.
func NewAuditTrail(db storage.Database) *AuditTrail {
	return &AuditTrail{db: db, now: time.Now}
}

func (t *AuditTrail) head() (uint64, error) {
	raw, err := t.db.Get(auditHeadKey)
	if err != nil {
		if err == storage.ErrNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("synth audit: load head: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("synth audit: corrupt head")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func auditKey(seq uint64) []byte {
	key := append([]byte(nil), auditRecordPrefix...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

// Append assigns the record an identifier and timestamp and persists it at
// the next sequence slot.
func (t *AuditTrail) Append(record *AuditRecord) error {
	if t == nil || record == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	seq, err := t.head()
	if err != nil {
		return err
	}
	record.ID = uuid.NewString()
	record.CreatedAt = t.now().Unix()

	stored := storedAuditRecord{
		ID:           record.ID,
		Kind:         record.Kind,
		Account:      record.Account,
		Counterparty: record.Counterparty,
		Asset:        record.Asset,
		Amount:       record.Amount,
		DebtCovered:  record.DebtCovered,
		CreatedAt:    uint64(record.CreatedAt),
	}
	if stored.Amount == nil {
		stored.Amount = big.NewInt(0)
	}
	if stored.DebtCovered == nil {
		stored.DebtCovered = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("synth audit: encode record: %w", err)
	}
	if err := t.db.Put(auditKey(seq), encoded); err != nil {
		return fmt.Errorf("synth audit: persist record: %w", err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq+1)
	if err := t.db.Put(auditHeadKey, buf[:]); err != nil {
		return fmt.Errorf("synth audit: persist head: %w", err)
	}
	return nil
}

// Records returns every audit record in insertion order.
func (t *AuditTrail) Records() ([]*AuditRecord, error) {
	if t == nil {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	count, err := t.head()
	if err != nil {
		return nil, err
	}
	records := make([]*AuditRecord, 0, count)
	for seq := uint64(0); seq < count; seq++ {
		raw, err := t.db.Get(auditKey(seq))
		if err != nil {
			return nil, fmt.Errorf("synth audit: load record %d: %w", seq, err)
		}
		var stored storedAuditRecord
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return nil, fmt.Errorf("synth audit: decode record %d: %w", seq, err)
		}
		records = append(records, &AuditRecord{
			ID:           stored.ID,
			Kind:         stored.Kind,
			Account:      stored.Account,
			Counterparty: stored.Counterparty,
			Asset:        stored.Asset,
			Amount:       stored.Amount,
			DebtCovered:  stored.DebtCovered,
			CreatedAt:    int64(stored.CreatedAt),
		})
	}
	return records, nil
}
