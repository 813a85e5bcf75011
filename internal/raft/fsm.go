package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// FSM holds the replicated set of claimed client order ids
type FSM struct {
	mu     sync.RWMutex
	claims map[string]Claim
}

// NewFSM creates a new FSM
func NewFSM() *FSM {
	return &FSM{
		claims: make(map[string]Claim),
	}
}

// Apply applies a log entry to the FSM
func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd, err := DecodeCommand(log.Data)
	if err != nil {
		return ClaimResult{Err: err.Error()}
	}

	var c ClaimCommand
	if err := json.Unmarshal(cmd.Payload, &c); err != nil {
		return ClaimResult{Err: fmt.Sprintf("failed to decode %s: %v", cmd.Kind, err)}
	}
	key := ClaimKey(c.Exchange, c.ClientOrderID)

	switch cmd.Kind {
	case CommandKindClaim:
		if existing, ok := f.claims[key]; ok {
			// keep the first holder
			return ClaimResult{Duplicate: true, OrderID: existing.OrderID}
		}
		f.claims[key] = Claim{
			Exchange:      c.Exchange,
			ClientOrderID: c.ClientOrderID,
			OrderID:       c.OrderID,
			ClaimedTs:     c.TsUnixMillis,
		}
		return ClaimResult{OrderID: c.OrderID}

	case CommandKindRelease:
		if existing, ok := f.claims[key]; ok && existing.OrderID == c.OrderID {
			delete(f.claims, key)
		}
		return ClaimResult{OrderID: c.OrderID}

	default:
		return ClaimResult{Err: fmt.Sprintf("unknown command kind %q", cmd.Kind)}
	}
}

// Snapshot returns a snapshot of the FSM state
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{state: f.Claims()}, nil
}

// Restore restores the FSM from a snapshot
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot map[string]Claim
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snapshot == nil {
		snapshot = make(map[string]Claim)
	}

	f.mu.Lock()
	f.claims = snapshot
	f.mu.Unlock()
	return nil
}

// Claim returns the holder of a client order id
func (f *FSM) Claim(exchange, clientOrderID string) (Claim, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, ok := f.claims[ClaimKey(exchange, clientOrderID)]
	return c, ok
}

// Claims returns a copy of the state
func (f *FSM) Claims() map[string]Claim {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]Claim, len(f.claims))
	for k, v := range f.claims {
		out[k] = v
	}
	return out
}

// fsmSnapshot implements raft.FSMSnapshot
type fsmSnapshot struct {
	state map[string]Claim
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
