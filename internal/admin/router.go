package admin

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luma/linehash/storage"
)

// MaxMessageSize bounds the body accepted by PUT /motd.
const MaxMessageSize = 1024

// NewRouter returns the admin HTTP API:
//
//	GET /ping    liveness, replies "pong"
//	GET /health  reports whether the TCP server still accepts connections
//	GET /motd    the current message of the day
//	PUT /motd    replaces the message of the day with the request body
func NewRouter(debugHTTP bool, log *zap.Logger, store storage.Store, accepting func() bool) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health", "/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/health", func(c *gin.Context) {
		if accepting != nil && !accepting() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopped"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/motd", func(c *gin.Context) {
		motd, err := store.Get(c.Request.Context(), storage.MessageOfTheDayKey)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"motd": motd})
	})

	r.PUT("/motd", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxMessageSize+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		motd := strings.TrimSpace(string(body))

		switch {
		case len(body) > MaxMessageSize:
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message too large"})
			return

		case strings.ContainsAny(motd, "\r\n"):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message must be a single line"})
			return
		}

		if err := store.Set(c.Request.Context(), storage.MessageOfTheDayKey, motd); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"motd": motd})
	})

	return r
}
