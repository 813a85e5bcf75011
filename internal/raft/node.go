package raft

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"go.uber.org/zap"
)

var ErrNotLeader = errors.New("not leader")

// Node wraps a HashiCorp Raft node replicating client order id claims
type Node struct {
	raft       *raft.Raft
	fsm        *FSM
	config     *Config
	logger     *zap.Logger
	shutdownCh chan struct{}
}

// Start starts a Raft node. With cfg.InMemory the log, stable store,
// snapshots and transport live in memory, which only makes sense for a
// single bootstrapped node.
func Start(ctx context.Context, cfg *Config, logger *zap.Logger) (*Node, error) {
	fsm := NewFSM()

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.SnapshotInterval = time.Duration(cfg.SnapshotInterval) * time.Second
	raftConfig.SnapshotThreshold = uint64(cfg.SnapshotThreshold)

	var (
		logStore      raft.LogStore
		stableStore   raft.StableStore
		snapshotStore raft.SnapshotStore
		transport     raft.Transport
		advertise     = raft.ServerAddress(cfg.AdvertiseAddr)
	)

	if cfg.InMemory {
		raftConfig.HeartbeatTimeout = 50 * time.Millisecond
		raftConfig.ElectionTimeout = 50 * time.Millisecond
		raftConfig.LeaderLeaseTimeout = 50 * time.Millisecond
		raftConfig.CommitTimeout = 5 * time.Millisecond

		store := raft.NewInmemStore()
		logStore, stableStore = store, store
		snapshotStore = raft.NewInmemSnapshotStore()
		addr, inmem := raft.NewInmemTransport(raft.ServerAddress(cfg.NodeID))
		transport, advertise = inmem, addr
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		bolt, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to create log store: %w", err)
		}
		logStore, stableStore = bolt, bolt

		snapshotStore, err = raft.NewFileSnapshotStore(cfg.DataDir, 3, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot store: %w", err)
		}

		transport, err = raft.NewTCPTransport(cfg.BindAddr, nil, 3, 10*time.Second, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	node := &Node{
		raft:       r,
		fsm:        fsm,
		config:     cfg,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}

	go node.monitorLeadership()

	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(cfg.NodeID),
					Address: advertise,
				},
			},
		}
		future := r.BootstrapCluster(configuration)
		if err := future.Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return nil, fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
		logger.Info("bootstrapped Raft cluster", zap.String("node_id", cfg.NodeID))
	}

	logger.Info("Raft node started",
		zap.String("node_id", cfg.NodeID),
		zap.String("bind_addr", cfg.BindAddr),
		zap.Bool("in_memory", cfg.InMemory),
		zap.Bool("bootstrap", cfg.Bootstrap),
	)

	return node, nil
}

// IsLeader returns whether this node is the leader
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// Leader returns the current leader address
func (n *Node) Leader() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// WaitForLeader blocks until the cluster has elected a leader
func (n *Node) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n.Leader() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no raft leader: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Apply applies a command to the Raft log
func (n *Node) Apply(ctx context.Context, cmd []byte, timeout time.Duration) (interface{}, error) {
	if !n.IsLeader() {
		return nil, fmt.Errorf("%w: leader is %q", ErrNotLeader, n.Leader())
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	applyFuture := n.raft.Apply(cmd, timeout)
	if err := applyFuture.Error(); err != nil {
		return nil, fmt.Errorf("failed to apply command: %w", err)
	}

	return applyFuture.Response(), nil
}

// Claim replicates a claim of (exchange, clientOrderID) for orderID
func (n *Node) Claim(ctx context.Context, exchange, clientOrderID, orderID string) (ClaimResult, error) {
	return n.applyClaim(ctx, CommandKindClaim, exchange, clientOrderID, orderID)
}

// Release replicates the release of a claim held by orderID
func (n *Node) Release(ctx context.Context, exchange, clientOrderID, orderID string) error {
	_, err := n.applyClaim(ctx, CommandKindRelease, exchange, clientOrderID, orderID)
	return err
}

func (n *Node) applyClaim(ctx context.Context, kind, exchange, clientOrderID, orderID string) (ClaimResult, error) {
	cmd, err := EncodeCommand(kind, ClaimCommand{
		Exchange:      exchange,
		ClientOrderID: clientOrderID,
		OrderID:       orderID,
		TsUnixMillis:  time.Now().UnixMilli(),
	})
	if err != nil {
		return ClaimResult{}, err
	}

	resp, err := n.Apply(ctx, cmd, n.applyTimeout())
	if err != nil {
		return ClaimResult{}, err
	}
	result, ok := resp.(ClaimResult)
	if !ok {
		return ClaimResult{}, fmt.Errorf("unexpected apply response %T", resp)
	}
	if result.Err != "" {
		return ClaimResult{}, errors.New(result.Err)
	}
	return result, nil
}

func (n *Node) applyTimeout() time.Duration {
	if n.config.ApplyTimeout > 0 {
		return n.config.ApplyTimeout
	}
	return 2 * time.Second
}

// FSM returns the FSM (for reads)
func (n *Node) FSM() *FSM {
	return n.fsm
}

// AddVoter adds a voter to the cluster
func (n *Node) AddVoter(serverID raft.ServerID, address raft.ServerAddress) error {
	if !n.IsLeader() {
		return ErrNotLeader
	}

	future := n.raft.AddVoter(serverID, address, 0, 0)
	return future.Error()
}

// monitorLeadership logs leadership changes
func (n *Node) monitorLeadership() {
	wasLeader := false
	for {
		select {
		case <-n.shutdownCh:
			return
		case <-time.After(500 * time.Millisecond):
			isLeader := n.IsLeader()
			if isLeader != wasLeader {
				n.logger.Info("raft leadership changed",
					zap.String("node_id", n.config.NodeID),
					zap.Bool("leader", isLeader),
				)
			}
			wasLeader = isLeader
		}
	}
}

// Shutdown shuts down the Raft node
func (n *Node) Shutdown() error {
	close(n.shutdownCh)
	if n.raft != nil {
		future := n.raft.Shutdown()
		return future.Error()
	}
	return nil
}
