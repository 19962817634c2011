package proposal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/omakh-hive/queen/internal/storage"
)

// LedgerEntry is one append-only audit record: a proposal's status
// transition, hash-chained to the previous entry so tampering with
// history is detectable. Grounded on
// internal/governance/constitutional.go's DecisionHash/ParentHash
// Merkle-chain pattern, reused here for proposal audit rather than
// escalation decisions.
type LedgerEntry struct {
	ProposalID string    `json:"proposal_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	EntryHash  string    `json:"entry_hash"`
	ParentHash string    `json:"parent_hash"`
}

// Ledger persists hash-chained LedgerEntry records in a dedicated
// bbolt bucket, one chain per proposal ID.
type Ledger struct {
	bucket *storage.Bucket
}

// NewLedger opens (creating if absent) the "proposal_ledger" bucket on db.
func NewLedger(db *storage.DB) (*Ledger, error) {
	b, err := db.Bucket("proposal_ledger")
	if err != nil {
		return nil, fmt.Errorf("open proposal ledger bucket: %w", err)
	}
	return &Ledger{bucket: b}, nil
}

// Record appends a transition entry for proposalID, chained to the
// most recently recorded entry for that same proposal.
func (l *Ledger) Record(proposalID string, from, to Status, reason string, at time.Time) error {
	parent, err := l.head(proposalID)
	if err != nil {
		return err
	}

	entry := LedgerEntry{
		ProposalID: proposalID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		Timestamp:  at,
		ParentHash: parent,
	}
	entry.EntryHash = hashEntry(entry)

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	key := fmt.Sprintf("%s:%020d", proposalID, at.UnixNano())
	if err := l.bucket.Put([]byte(key), raw); err != nil {
		return fmt.Errorf("persist ledger entry: %w", err)
	}
	return l.bucket.Put([]byte(headKey(proposalID)), []byte(entry.EntryHash))
}

// History returns every recorded transition for proposalID, oldest first.
func (l *Ledger) History(proposalID string) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	prefix := proposalID + ":"
	head := headKey(proposalID)
	err := l.bucket.ForEach(func(k, v []byte) error {
		key := string(k)
		if key == head {
			return nil
		}
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			return nil
		}
		var e LedgerEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func (l *Ledger) head(proposalID string) (string, error) {
	raw, err := l.bucket.Get([]byte(headKey(proposalID)))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func headKey(proposalID string) string {
	return proposalID + ":head"
}

func hashEntry(e LedgerEntry) string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%d|%s",
		e.ProposalID, e.FromStatus, e.ToStatus, e.Reason, e.Timestamp.UnixNano(), e.ParentHash)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
