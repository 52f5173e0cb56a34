package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// RecoveryWithLog converts a handler panic into a 500 and records who was
// acting on which route when it happened, so a crashing board action can be
// traced back from the logs.
func RecoveryWithLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("❌ Panic on %s %s (actor %s): %v\n%s",
					c.Request.Method, c.Request.URL.Path, Actor(c), r, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
