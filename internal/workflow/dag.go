// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow implements the C11 Deep Workflow: a fourteen-node DAG
// that turns context-engineered evidence into a full analytical Report,
// with per-node idempotence, single-writer-per-field state, and
// checkpoint/resume support (spec §4.11).
package workflow

import (
	"context"
	"time"
)

// Node is one step of the Deep Workflow DAG.
type Node interface {
	Name() string
	Dependencies() []string
	Execute(ctx context.Context, inputs map[string]any) (any, error)
	Retryable() bool
	Timeout() time.Duration
}

// NodeStatus is a node's execution lifecycle state.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// DAG holds the node set and their dependency edges, built once and then
// read-only for the lifetime of an execution.
type DAG struct {
	name  string
	nodes map[string]Node
}

// Builder assembles a DAG, validating it has no cycles and no dangling
// dependency references before Build returns it.
type Builder struct {
	name  string
	nodes map[string]Node
}

// NewBuilder starts building a DAG named name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, nodes: map[string]Node{}}
}

// AddNode registers node. Adding a node whose name is already registered is
// an error.
func (b *Builder) AddNode(node Node) error {
	if node == nil {
		return ErrNilNode
	}
	if _, exists := b.nodes[node.Name()]; exists {
		return NewNodeError(node.Name(), ErrDuplicateNode)
	}
	b.nodes[node.Name()] = node
	return nil
}

// Build validates the dependency graph (every dependency must reference a
// registered node, and the graph must be acyclic) and returns the DAG.
func (b *Builder) Build() (*DAG, error) {
	for name, node := range b.nodes {
		for _, dep := range node.Dependencies() {
			if _, ok := b.nodes[dep]; !ok {
				return nil, NewNodeError(name, ErrNodeNotFound)
			}
		}
	}

	if cyclePath, ok := detectCycle(b.nodes); ok {
		return nil, NewCycleError(cyclePath)
	}

	return &DAG{name: b.name, nodes: b.nodes}, nil
}

func detectCycle(nodes map[string]Node) ([]string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)

		for _, dep := range nodes[name].Dependencies() {
			switch color[dep] {
			case gray:
				path = append(path, dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for name := range nodes {
		if color[name] == white {
			if visit(name) {
				return path, true
			}
		}
	}
	return nil, false
}

// Name returns the DAG's name.
func (d *DAG) Name() string { return d.name }

// NodeNames returns every registered node's name.
func (d *DAG) NodeNames() []string {
	names := make([]string, 0, len(d.nodes))
	for name := range d.nodes {
		names = append(names, name)
	}
	return names
}

// GetNode returns the node registered under name.
func (d *DAG) GetNode(name string) (Node, bool) {
	n, ok := d.nodes[name]
	return n, ok
}
