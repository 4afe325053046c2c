// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmbackend implements the C1 LM adapter: generate(prompt, options)
// -> text, backed by an OpenAI-compatible chat completions endpoint, with a
// two-model strategy (a small fast model for the Fast Path, a larger model
// for the Deep Path) per spec §4.14.
package llmbackend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// GenerationParams mirrors the LM boundary named in spec §4.1: all fields
// are optional, nil meaning "use the provider's default".
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
}

// LM is the C1 LM adapter boundary.
type LM interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Tier selects which of the two configured models handles a call.
type Tier int

const (
	TierFast Tier = iota
	TierDeep
)

// Client implements LM against the OpenAI chat completions API, holding one
// model name per tier so callers request a tier rather than a model string.
type Client struct {
	api       *openai.Client
	fastModel string
	deepModel string
	systemPrompt string
	log       *slog.Logger
}

// Config configures Client construction.
type Config struct {
	APIKey       string
	FastModel    string
	DeepModel    string
	SystemPrompt string
}

// NewClient builds a Client. If cfg.APIKey is empty it falls back to the
// OPENAI_API_KEY environment variable, then to a Podman/Docker secret file
// at /run/secrets/openai_api_key, matching the provisioning convention used
// throughout this stack's container deployments.
func NewClient(cfg Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("llmbackend: no API key in config, OPENAI_API_KEY, or %s", secretPath)
		}
		apiKey = strings.TrimSpace(string(raw))
	}

	fast := cfg.FastModel
	if fast == "" {
		fast = "gpt-4o-mini"
	}
	deep := cfg.DeepModel
	if deep == "" {
		deep = "gpt-4o"
	}
	sys := cfg.SystemPrompt
	if sys == "" {
		sys = "You are a financial research assistant for Korean equities and news."
	}

	return &Client{
		api:          openai.NewClient(apiKey),
		fastModel:    fast,
		deepModel:    deep,
		systemPrompt: sys,
		log:          slog.Default().With("component", "llmbackend"),
	}, nil
}

// Generate implements LM using the fast-tier model, for ordinary single-shot
// use from the Fast Path.
func (c *Client) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return c.generateWithModel(ctx, c.fastModel, prompt, params)
}

// GenerateTier invokes the model bound to tier, letting Deep Workflow nodes
// opt into the larger model explicitly.
func (c *Client) GenerateTier(ctx context.Context, tier Tier, prompt string, params GenerationParams) (string, error) {
	model := c.fastModel
	if tier == TierDeep {
		model = c.deepModel
	}
	return c.generateWithModel(ctx, model, prompt, params)
}

func (c *Client) generateWithModel(ctx context.Context, model, prompt string, params GenerationParams) (string, error) {
	c.log.Debug("generating", "model", model)

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		c.log.Error("generation call failed", "model", model, "error", err)
		return "", fmt.Errorf("llmbackend: generate via %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmbackend: %s returned no choices", model)
	}
	return resp.Choices[0].Message.Content, nil
}
