package supervisor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/omakh-hive/queen/internal/consensus"
	"github.com/omakh-hive/queen/internal/storage"
)

// DecisionLog is the append-only record of every Decision the
// Supervisor emits, keyed by a sortable timestamp so History can
// return entries in emission order. Grounded on
// internal/proposal/ledger.go's bucket-keyed append pattern, minus
// the hash-chain — spec.md §5 requires the decision log to be
// append-only and monotonic per instance, not tamper-evident.
type DecisionLog struct {
	bucket *storage.Bucket
}

// decisionRecord is the JSON shape persisted per entry.
type decisionRecord struct {
	consensus.Decision
	RequiresHumanApproval bool      `json:"requires_human_approval"`
	RecordedAt            time.Time `json:"recorded_at"`
}

const decisionBucketName = "decision_log"

// NewDecisionLog opens (or creates) the decision log bucket in db.
func NewDecisionLog(db *storage.DB) (*DecisionLog, error) {
	b, err := db.Bucket(decisionBucketName)
	if err != nil {
		return nil, err
	}
	return &DecisionLog{bucket: b}, nil
}

// Record appends d to the log, stamped with the current time.
func (l *DecisionLog) Record(d consensus.Decision, requiresApproval bool) error {
	rec := decisionRecord{Decision: d, RequiresHumanApproval: requiresApproval, RecordedAt: time.Now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%020d", rec.RecordedAt.UnixNano())
	return l.bucket.Put([]byte(key), raw)
}

// History returns every recorded decision in emission order.
func (l *DecisionLog) History() ([]decisionRecord, error) {
	var out []decisionRecord
	err := l.bucket.ForEach(func(_, value []byte) error {
		var rec decisionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
