// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedder implements the C1 Embedder adapter, a thin boundary over
// an OpenAI-compatible embeddings endpoint. Weaviate's own vectorizer path
// is out of scope per spec §1; the Search adapter instead supplies vectors
// produced here when a caller needs an explicit near-vector query.
package embedder

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder is the C1 Embedder adapter boundary.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client implements Embedder against the OpenAI embeddings API.
type Client struct {
	api   *openai.Client
	model openai.EmbeddingModel
	log   *slog.Logger
}

// NewClient builds a Client. model defaults to text-embedding-3-small when
// empty.
func NewClient(apiKey string, model openai.EmbeddingModel) *Client {
	if model == "" {
		model = openai.SmallEmbedding3
	}
	return &Client{
		api:   openai.NewClient(apiKey),
		model: model,
		log:   slog.Default().With("component", "embedder"),
	}
}

// Embed implements Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		c.log.Error("embedding call failed", "error", err)
		return nil, fmt.Errorf("embedder: create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedder: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
