// Package trust implements the gateway's audit layer: an HMAC-signed hash
// chain over recorded runs, compliance evaluation, and signed evidence
// exports for auditors.
package trust

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ChainEntry is one signed link in the audit chain. Each entry carries the
// hash of the previous entry, so modifying any record breaks every link
// after it.
type ChainEntry struct {
	Sequence   int64     `json:"sequence"`    // monotonic counter, 1-based
	RunID      string    `json:"run_id"`      // the run record this signs
	RecordHash string    `json:"record_hash"` // sha256 of the record JSON
	PrevHash   string    `json:"prev_hash"`   // hash of the previous entry, empty for the first
	Signature  string    `json:"signature"`   // HMAC-SHA256 over sequence|run_id|record_hash|prev_hash
	Timestamp  time.Time `json:"timestamp"`
}

// AuditChain maintains an ordered, signed sequence of record hashes.
// Safe for concurrent use.
type AuditChain struct {
	mu      sync.Mutex
	secret  []byte
	entries []ChainEntry
	last    string
	seq     int64
}

// NewAuditChain creates an audit chain signing with the given HMAC key.
func NewAuditChain(secret string) *AuditChain {
	return &AuditChain{
		secret:  []byte(secret),
		entries: make([]ChainEntry, 0),
	}
}

// Append hashes the record JSON, links it to the previous entry, signs it,
// and returns the new entry.
func (ac *AuditChain) Append(runID string, recordJSON []byte) ChainEntry {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.seq++

	entry := ChainEntry{
		Sequence:   ac.seq,
		RunID:      runID,
		RecordHash: sha256Hex(recordJSON),
		PrevHash:   ac.last,
		Timestamp:  time.Now().UTC(),
	}
	entry.Signature = ac.sign(entry)

	// This entry's hash becomes prev_hash for the next one.
	entryJSON, _ := json.Marshal(entry)
	ac.last = sha256Hex(entryJSON)

	ac.entries = append(ac.entries, entry)
	return entry
}

// Verify walks the chain checking every signature and every prev_hash link.
// Returns (true, 0, nil) for an intact chain, otherwise the sequence number
// of the first broken entry.
func (ac *AuditChain) Verify() (valid bool, brokenAt int64, err error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if len(ac.entries) == 0 {
		return true, 0, nil
	}

	prevHash := ""
	for i, entry := range ac.entries {
		if entry.PrevHash != prevHash {
			return false, entry.Sequence, fmt.Errorf(
				"chain broken at sequence %d: prev_hash mismatch", entry.Sequence)
		}

		if entry.Signature != ac.sign(entry) {
			return false, entry.Sequence, fmt.Errorf(
				"chain broken at sequence %d: signature mismatch", entry.Sequence)
		}

		entryJSON, _ := json.Marshal(ac.entries[i])
		prevHash = sha256Hex(entryJSON)
	}

	return true, 0, nil
}

// Entries returns a copy of all chain entries.
func (ac *AuditChain) Entries() []ChainEntry {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	out := make([]ChainEntry, len(ac.entries))
	copy(out, ac.entries)
	return out
}

// Len returns the number of entries in the chain.
func (ac *AuditChain) Len() int64 {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.seq
}

func (ac *AuditChain) sign(e ChainEntry) string {
	msg := fmt.Sprintf("%d|%s|%s|%s", e.Sequence, e.RunID, e.RecordHash, e.PrevHash)
	mac := hmac.New(sha256.New, ac.secret)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
