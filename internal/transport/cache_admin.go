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
	"net/http"

	"github.com/gin-gonic/gin"
)

// CacheInvalidateRequest is the POST /v1/cache/invalidate request body. The
// underlying cache tiers (ristretto L1, Badger L3) don't support pattern
// scans, so invalidation is by exact fingerprint key rather than the
// original implementation's glob pattern.
type CacheInvalidateRequest struct {
	Key string `json:"key" binding:"required"`
}

// CacheStats reports lookup counters for the multi-level cache.
func CacheStats(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if eng.Cache == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not configured"})
			return
		}
		stats := eng.Cache.Stats()
		c.JSON(http.StatusOK, gin.H{
			"l1_hits":  stats.L1Hits,
			"l2_hits":  stats.L2Hits,
			"l3_hits":  stats.L3Hits,
			"misses":   stats.Misses,
			"hit_rate": stats.HitRate(),
		})
	}
}

// CacheInvalidate deletes one key from every configured cache tier.
func CacheInvalidate(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if eng.Cache == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not configured"})
			return
		}
		var req CacheInvalidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := eng.Cache.Del(c.Request.Context(), req.Key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "key": req.Key})
	}
}
