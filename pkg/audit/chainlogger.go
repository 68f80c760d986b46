// Package audit provides a tamper-evident append-only log. Each entry hashes
// over its predecessor, so any rewrite of history breaks the chain.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is a single record in the hash chain.
type Entry struct {
	Seq          int64  `json:"seq"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger appends entries under a mutex and keeps them in memory for
// verification and export.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
	seq          int64
	entries      []*Entry
}

// NewChainLogger starts a chain anchored at the zero hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
	}
}

// Append adds a payload to the chain and returns the sealed entry.
func (c *ChainLogger) Append(payload string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	entry := &Entry{
		Seq:          c.seq,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = entryHash(entry)

	c.previousHash = entry.Hash
	c.entries = append(c.entries, entry)
	return entry
}

// Entries returns a snapshot of the chain.
func (c *ChainLogger) Entries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// VerifyChain checks that entries form an unbroken, unmodified chain.
func VerifyChain(entries []*Entry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if entryHash(entry) != entry.Hash {
			return false
		}
	}
	return true
}

func entryHash(e *Entry) string {
	input := fmt.Sprintf("%d|%s|%s|%s", e.Seq, e.PreviousHash, e.Timestamp, e.Payload)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
