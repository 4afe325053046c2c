// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kquery/fusion-engine/internal/domain"
)

// TestRun_PartialFailureStillReturnsOtherResults verifies that one backend
// failing does not prevent the others' results from being returned.
func TestRun_PartialFailureStillReturnsOtherResults(t *testing.T) {
	result := Run(context.Background(), Request{
		Graph: func(context.Context) ([]domain.GraphRow, error) {
			return nil, errors.New("graph down")
		},
		Search: func(context.Context) ([]domain.NewsHit, error) {
			return []domain.NewsHit{{Title: "headline"}}, nil
		},
	})

	require.Error(t, result.GraphErr)
	require.NoError(t, result.SearchErr)
	assert.Len(t, result.NewsHits, 1)
}

// TestRun_RespectsPerCallTimeout verifies a caller that outlives the
// configured timeout surfaces an error without hanging the whole Run call.
func TestRun_RespectsPerCallTimeout(t *testing.T) {
	result := Run(context.Background(), Request{
		Timeout: 10 * time.Millisecond,
		Market: func(ctx context.Context) (domain.StockSnapshot, error) {
			select {
			case <-time.After(100 * time.Millisecond):
				return domain.StockSnapshot{}, nil
			case <-ctx.Done():
				return domain.StockSnapshot{}, ctx.Err()
			}
		},
	})

	assert.Error(t, result.MarketErr)
	assert.False(t, result.HasSnapshot)
}

// TestResult_AllFailed verifies AllFailed only reports true when every
// backend that was actually requested failed.
func TestResult_AllFailed(t *testing.T) {
	r := Result{GraphErr: errors.New("x"), SearchErr: errors.New("y")}
	assert.True(t, r.AllFailed(true, true, false))
	assert.False(t, r.AllFailed(true, true, true))
}
