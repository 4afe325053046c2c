// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kquery/fusion-engine/internal/cache"
)

// TestCacheStats_ReportsUnavailableWithoutCache verifies the admin endpoint
// degrades gracefully when no cache is wired.
func TestCacheStats_ReportsUnavailableWithoutCache(t *testing.T) {
	eng := newTestEngine()
	r := NewRouter(eng)

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestCacheInvalidate_RejectsMissingKey checks the binding validation on the
// invalidate request body.
func TestCacheInvalidate_RejectsMissingKey(t *testing.T) {
	eng := newTestEngine()
	eng.Cache = cache.NewMultiCache(nil, nil, nil)
	r := NewRouter(eng)

	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/invalidate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
