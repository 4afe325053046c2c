// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// State tracks one execution's progress: which nodes have completed, their
// outputs, and any failure. Every field is written by exactly one writer at
// a time (the executor goroutine currently owning that node), but State
// itself stays mutex-protected because reads happen concurrently from
// dependent-node goroutines checking readiness.
type State struct {
	mu sync.RWMutex

	SessionID      string                `json:"session_id"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedNodes map[string]bool       `json:"completed_nodes"`
	NodeOutputs    map[string]any        `json:"node_outputs"`
	NodeStatuses   map[string]NodeStatus `json:"node_statuses"`
	FailedNode     string                `json:"failed_node,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// NewState creates execution state for sessionID.
func NewState(sessionID string) *State {
	return &State{
		SessionID:      sessionID,
		StartedAt:      time.Now(),
		CompletedNodes: make(map[string]bool),
		NodeOutputs:    make(map[string]any),
		NodeStatuses:   make(map[string]NodeStatus),
	}
}

// IsCompleted reports whether nodeName has finished successfully.
func (s *State) IsCompleted(nodeName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CompletedNodes[nodeName]
}

// SetCompleted marks nodeName completed with output. Calling this twice for
// the same node is safe (idempotent): the second call simply overwrites the
// same fields with (expected to be identical) values, matching the spec's
// per-node idempotence requirement.
func (s *State) SetCompleted(nodeName string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompletedNodes[nodeName] = true
	s.NodeOutputs[nodeName] = output
	s.NodeStatuses[nodeName] = NodeStatusCompleted
}

// GetOutput returns nodeName's recorded output.
func (s *State) GetOutput(nodeName string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.NodeOutputs[nodeName]
	return v, ok
}

// SetFailed records nodeName as the cause of execution failure.
func (s *State) SetFailed(nodeName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailedNode = nodeName
	s.Error = err.Error()
	s.NodeStatuses[nodeName] = NodeStatusFailed
}

// IsFailed reports whether any node has failed.
func (s *State) IsFailed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FailedNode != ""
}

// SetStatus sets nodeName's status.
func (s *State) SetStatus(nodeName string, status NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeStatuses[nodeName] = status
}

// GetStatus returns nodeName's status, defaulting to Pending when unset.
func (s *State) GetStatus(nodeName string) NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.NodeStatuses[nodeName]
	if !ok {
		return NodeStatusPending
	}
	return st
}

// IsDAGComplete reports whether every node in dag has completed.
func (s *State) IsDAGComplete(dag *DAG) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range dag.NodeNames() {
		if !s.CompletedNodes[name] {
			return false
		}
	}
	return true
}

// snapshot is the JSON-serializable view of State, used for both Checkpoint
// encoding and the checksum that verifies one on load.
type snapshot struct {
	SessionID      string                `json:"session_id"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedNodes map[string]bool       `json:"completed_nodes"`
	NodeOutputs    map[string]any        `json:"node_outputs"`
	NodeStatuses   map[string]NodeStatus `json:"node_statuses"`
	FailedNode     string                `json:"failed_node,omitempty"`
	Error          string                `json:"error,omitempty"`
}

func (s *State) toSnapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		SessionID:      s.SessionID,
		StartedAt:      s.StartedAt,
		CompletedNodes: s.CompletedNodes,
		NodeOutputs:    s.NodeOutputs,
		NodeStatuses:   s.NodeStatuses,
		FailedNode:     s.FailedNode,
		Error:          s.Error,
	}
}

// Checkpoint is a serializable snapshot enabling resume after failure or
// process restart (spec §4.11).
type Checkpoint struct {
	Snapshot  []byte    `json:"snapshot"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Checksum  string    `json:"checksum"`
	DAGName   string    `json:"dag_name"`
}

const checkpointVersion = "v1"

// NewCheckpoint encodes state into a Checkpoint for dagName.
func NewCheckpoint(dagName string, state *State) (Checkpoint, error) {
	raw, err := json.Marshal(state.toSnapshot())
	if err != nil {
		return Checkpoint{}, err
	}
	sum := sha256.Sum256(raw)
	return Checkpoint{
		Snapshot:  raw,
		Timestamp: time.Now(),
		Version:   checkpointVersion,
		Checksum:  hex.EncodeToString(sum[:]),
		DAGName:   dagName,
	}, nil
}

// Restore decodes cp back into a *State, verifying its checksum first.
func Restore(cp Checkpoint) (*State, error) {
	sum := sha256.Sum256(cp.Snapshot)
	if hex.EncodeToString(sum[:]) != cp.Checksum {
		return nil, ErrCheckpointCorrupt
	}

	var snap snapshot
	if err := json.Unmarshal(cp.Snapshot, &snap); err != nil {
		return nil, ErrCheckpointCorrupt
	}

	return &State{
		SessionID:      snap.SessionID,
		StartedAt:      snap.StartedAt,
		CompletedNodes: snap.CompletedNodes,
		NodeOutputs:    snap.NodeOutputs,
		NodeStatuses:   snap.NodeStatuses,
		FailedNode:     snap.FailedNode,
		Error:          snap.Error,
	}, nil
}
