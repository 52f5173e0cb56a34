package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/backend/internal/cache"
)

// CacheHandler exposes the read-cache admin surface: stats, health, and
// manual eviction for the task read cache.
type CacheHandler struct {
	Cache   cache.Cache
	Metrics *cache.CacheMetrics
}

func NewCacheHandler(cacheInstance cache.Cache, metrics *cache.CacheMetrics) *CacheHandler {
	return &CacheHandler{
		Cache:   cacheInstance,
		Metrics: metrics,
	}
}

// GetCacheStats returns backend statistics plus hit/miss counters
// GET /cache/stats
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	stats := gin.H{}

	if h.Cache != nil {
		stats["cache"] = h.Cache.Stats()
	}

	if h.Metrics != nil {
		stats["counters"] = h.Metrics.GetStats()
		stats["hit_rate"] = h.Metrics.HitRate()
	}

	c.JSON(http.StatusOK, stats)
}

// GetCacheHealth pings the cache backend
// GET /cache/health
func (h *CacheHandler) GetCacheHealth(c *gin.Context) {
	if h.Cache == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "unavailable",
			"message": "Cache is not initialized",
			"healthy": false,
		})
		return
	}

	if err := h.Cache.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": err.Error(),
			"healthy": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"healthy": true,
	})
}

// EvictCacheKey evicts a specific cache key or pattern
// DELETE /cache/keys/:key
func (h *CacheHandler) EvictCacheKey(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"message": "Key parameter is required",
		})
		return
	}

	if h.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Cache not available",
			"message": "Cache is not initialized",
		})
		return
	}

	if containsWildcard(key) {
		if err := h.Cache.DeletePattern(key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to evict cache pattern",
				"message": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Cache pattern evicted successfully",
			"pattern": key,
		})
		return
	}

	if err := h.Cache.Delete(key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to evict cache key",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Cache key evicted successfully",
		"key":     key,
	})
}

func containsWildcard(s string) bool {
	return len(s) > 0 && (s[len(s)-1] == '*' || s[0] == '*')
}
