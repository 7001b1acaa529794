package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// ResponseMeta is merged into the "meta" field of JSON envelopes.
type ResponseMeta map[string]interface{}

// WithResponseMeta stores an empty ResponseMeta on every request and stamps processing_time_ms once the chain returns.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, ResponseMeta{})
		c.Next()
		meta := metaFor(c)
		if _, ok := meta["processing_time_ms"]; !ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetMeta records a single metadata entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	metaFor(c)[key] = value
}

// SetCacheHit records whether the payload was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
}

// ExtractMeta returns the metadata collected so far, or nil when WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if raw, ok := c.Get(responseMetaKey); ok {
		if meta, ok := raw.(ResponseMeta); ok {
			return meta
		}
	}
	return nil
}

func metaFor(c *gin.Context) ResponseMeta {
	if c == nil {
		return ResponseMeta{}
	}
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := ResponseMeta{}
	c.Set(responseMetaKey, meta)
	return meta
}
