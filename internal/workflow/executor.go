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
	"log/slog"
	"time"
)

// Result is the outcome of one DAG execution.
type Result struct {
	Success       bool
	SessionID     string
	Duration      time.Duration
	NodesExecuted int
	Output        any
	Error         string
	FailedNode    string
	NodeDurations map[string]time.Duration
}

// Executor runs a DAG to completion, scheduling each node as soon as its
// dependencies have completed, per spec §4.11's node-level parallelism
// within the overall workflow.
type Executor struct {
	dag   *DAG
	log   *slog.Logger
}

// NewExecutor builds an Executor for dag.
func NewExecutor(dag *DAG) *Executor {
	return &Executor{dag: dag, log: slog.Default().With("component", "deep_workflow", "dag", dag.Name())}
}

// Run executes every node in dag, starting from state (which may already
// have some nodes marked completed, for resume), and returns once every
// node has finished or one has failed.
func (e *Executor) Run(ctx context.Context, state *State, terminal string) Result {
	start := time.Now()
	durations := map[string]time.Duration{}

	for !state.IsDAGComplete(e.dag) && !state.IsFailed() {
		ready := e.readyNodes(state)
		if len(ready) == 0 {
			state.SetFailed("", ErrNoProgress)
			break
		}

		type outcome struct {
			name     string
			output   any
			err      error
			duration time.Duration
		}
		results := make(chan outcome, len(ready))

		for _, name := range ready {
			node := e.dag.nodes[name]
			state.SetStatus(name, NodeStatusRunning)
			go func(node Node) {
				nodeCtx := ctx
				var cancel context.CancelFunc
				if t := node.Timeout(); t > 0 {
					nodeCtx, cancel = context.WithTimeout(ctx, t)
					defer cancel()
				}

				inputs := e.collectInputs(state, node)
				started := time.Now()
				out, err := node.Execute(nodeCtx, inputs)
				results <- outcome{name: node.Name(), output: out, err: err, duration: time.Since(started)}
			}(node)
		}

		for range ready {
			r := <-results
			durations[r.name] = r.duration
			if r.err != nil {
				e.log.Error("node failed", "node", r.name, "error", r.err)
				state.SetFailed(r.name, NewNodeError(r.name, r.err))
				continue
			}
			state.SetCompleted(r.name, r.output)
		}
	}

	result := Result{
		SessionID:     state.SessionID,
		Duration:      time.Since(start),
		NodesExecuted: state.CompletedCount(),
		NodeDurations: durations,
	}

	if state.IsFailed() {
		result.Success = false
		result.Error = state.Error
		result.FailedNode = state.FailedNode
		return result
	}

	out, _ := state.GetOutput(terminal)
	result.Success = true
	result.Output = out
	return result
}

// CompletedCount returns how many nodes have completed.
func (s *State) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.CompletedNodes)
}

// readyNodes returns every not-yet-completed, not-currently-running node
// whose dependencies have all completed.
func (e *Executor) readyNodes(state *State) []string {
	var ready []string
	for name, node := range e.dag.nodes {
		if state.IsCompleted(name) || state.GetStatus(name) == NodeStatusRunning {
			continue
		}
		allDepsMet := true
		for _, dep := range node.Dependencies() {
			if !state.IsCompleted(dep) {
				allDepsMet = false
				break
			}
		}
		if allDepsMet {
			ready = append(ready, name)
		}
	}
	return ready
}

func (e *Executor) collectInputs(state *State, node Node) map[string]any {
	inputs := make(map[string]any, len(node.Dependencies()))
	for _, dep := range node.Dependencies() {
		if out, ok := state.GetOutput(dep); ok {
			inputs[dep] = out
		}
	}
	return inputs
}
