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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExecutor_RunsDependenciesBeforeDependents verifies a node never
// executes before all of its dependencies have completed.
func TestExecutor_RunsDependenciesBeforeDependents(t *testing.T) {
	b := NewBuilder("test")
	require.NoError(t, b.AddNode(ok("leaf1")))
	require.NoError(t, b.AddNode(ok("leaf2")))
	require.NoError(t, b.AddNode(stubNode{
		name: "join",
		deps: []string{"leaf1", "leaf2"},
		fn: func(ctx context.Context, inputs map[string]any) (any, error) {
			if _, ok := inputs["leaf1"]; !ok {
				return nil, errors.New("missing leaf1 output")
			}
			if _, ok := inputs["leaf2"]; !ok {
				return nil, errors.New("missing leaf2 output")
			}
			return "joined", nil
		},
	}))
	dag, err := b.Build()
	require.NoError(t, err)

	exec := NewExecutor(dag)
	state := NewState("session-1")
	result := exec.Run(context.Background(), state, "join")

	require.True(t, result.Success)
	assert.Equal(t, "joined", result.Output)
	assert.Equal(t, 3, result.NodesExecuted)
}

// TestExecutor_NodeFailurePropagates ensures a failing node surfaces as the
// failed node in the Result, without the DAG completing.
func TestExecutor_NodeFailurePropagates(t *testing.T) {
	b := NewBuilder("test")
	failing := stubNode{name: "broken", fn: func(ctx context.Context, inputs map[string]any) (any, error) {
		return nil, errors.New("boom")
	}}
	require.NoError(t, b.AddNode(failing))
	dag, err := b.Build()
	require.NoError(t, err)

	exec := NewExecutor(dag)
	state := NewState("session-2")
	result := exec.Run(context.Background(), state, "broken")

	assert.False(t, result.Success)
	assert.Equal(t, "broken", result.FailedNode)
}

// TestExecutor_RespectsNodeTimeout confirms a node that outlives its declared
// timeout is cancelled rather than left to run indefinitely.
func TestExecutor_RespectsNodeTimeout(t *testing.T) {
	b := NewBuilder("test")
	require.NoError(t, b.AddNode(stubNode{
		name: "slow",
		fn: func(ctx context.Context, inputs map[string]any) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return "too late", nil
			}
		},
	}))
	dag, err := b.Build()
	require.NoError(t, err)

	exec := NewExecutor(dag)
	state := NewState("session-3")

	started := time.Now()
	result := exec.Run(context.Background(), state, "slow")

	assert.False(t, result.Success)
	assert.Less(t, time.Since(started), 1500*time.Millisecond)
}

// TestExecutor_ResumesFromCheckpoint verifies a pre-populated State (as
// Restore would produce) lets the executor skip already-completed nodes.
func TestExecutor_ResumesFromCheckpoint(t *testing.T) {
	b := NewBuilder("test")
	ran := false
	require.NoError(t, b.AddNode(ok("done")))
	require.NoError(t, b.AddNode(stubNode{
		name: "pending",
		deps: []string{"done"},
		fn: func(ctx context.Context, inputs map[string]any) (any, error) {
			ran = true
			return "finished", nil
		},
	}))
	dag, err := b.Build()
	require.NoError(t, err)

	state := NewState("session-4")
	state.SetCompleted("done", "done")

	exec := NewExecutor(dag)
	result := exec.Run(context.Background(), state, "pending")

	require.True(t, result.Success)
	assert.True(t, ran)
	assert.Equal(t, "finished", result.Output)
}
