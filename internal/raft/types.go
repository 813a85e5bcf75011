package raft

import (
	"encoding/json"
	"fmt"
)

// CommandEnvelope wraps commands for Raft
type CommandEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Command kinds
const (
	CommandKindClaim   = "CLAIM_CLIENT_ORDER_ID"
	CommandKindRelease = "RELEASE_CLIENT_ORDER_ID"
)

// ClaimCommand reserves (Exchange, ClientOrderID) for OrderID. Release uses
// the same payload and only succeeds for the holder.
type ClaimCommand struct {
	Exchange      string `json:"exchange"`
	ClientOrderID string `json:"client_order_id"`
	OrderID       string `json:"order_id"`
	TsUnixMillis  int64  `json:"ts_unix_millis"`
}

// Claim is one entry of the FSM state
type Claim struct {
	Exchange      string `json:"exchange"`
	ClientOrderID string `json:"client_order_id"`
	OrderID       string `json:"order_id"`
	ClaimedTs     int64  `json:"claimed_ts"`
}

// ClaimResult is the response of an applied claim or release
type ClaimResult struct {
	Duplicate bool   `json:"duplicate"`
	OrderID   string `json:"order_id"`
	Err       string `json:"err,omitempty"`
}

// ClaimKey is the FSM key of a client order id
func ClaimKey(exchange, clientOrderID string) string {
	return exchange + "/" + clientOrderID
}

// EncodeCommand encodes a command into JSON bytes
func EncodeCommand(kind string, payload interface{}) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	cmd := CommandEnvelope{
		Kind:    kind,
		Payload: payloadJSON,
	}

	return json.Marshal(cmd)
}

// DecodeCommand decodes a command from JSON bytes
func DecodeCommand(data []byte) (*CommandEnvelope, error) {
	var cmd CommandEnvelope
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	return &cmd, nil
}
