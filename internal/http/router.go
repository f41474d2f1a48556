// Package http exposes the bridge's REST surface and maps dispatch results
// onto status codes.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saker-ai/vrchat-bridge/internal/command"
	"github.com/saker-ai/vrchat-bridge/internal/gateway"
	"github.com/saker-ai/vrchat-bridge/internal/ws"
)

// NewRouter wires every endpoint. Health and the monitor feed bypass the
// gateway; everything else goes through Dispatch and is audited there.
func NewRouter(gw *gateway.Gateway, monitor *ws.Monitor, auditDropped func() int64, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if auditDropped != nil {
			if n := auditDropped(); n > 0 {
				body["status"] = "degraded"
				body["audit_dropped"] = n
			}
		}
		c.JSON(http.StatusOK, body)
	})

	if monitor != nil {
		router.GET("/monitor-ws", monitor.Handle)
	}

	router.POST("/chatbox", dispatch(gw, command.OpSendMessage))
	router.POST("/chatbox/typing", dispatch(gw, command.OpSetTyping))
	router.POST("/move", dispatch(gw, command.OpMove))
	router.POST("/jump", dispatch(gw, command.OpJump))
	router.POST("/run", dispatch(gw, command.OpSetRun))
	router.POST("/voice", dispatch(gw, command.OpSetVoice))
	router.POST("/avatar/parameter", dispatch(gw, command.OpSetParameter))
	router.POST("/raw", dispatch(gw, command.OpRaw))
	router.POST("/launch", dispatch(gw, command.OpLaunchWorld))

	router.POST("/capture/audio", dispatch(gw, command.OpCaptureAudio))
	router.POST("/capture/transcribe", dispatch(gw, command.OpTranscribeAudio))
	router.GET("/capture/devices", dispatch(gw, command.OpListAudioDevices))
	router.GET("/screenshot", dispatch(gw, command.OpCaptureScreen))

	return router
}

func dispatch(gw *gateway.Gateway, op command.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, err := requestFields(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_json"})
			return
		}
		result := gw.Dispatch(c.Request.Context(), op, fields, bearerToken(c.Request))
		writeResult(c, result)
	}
}

// requestFields decodes the JSON body with UseNumber so validation can tell
// integers from floats. GET requests carry their fields as query parameters.
func requestFields(c *gin.Context) (map[string]any, error) {
	if c.Request.Method == http.MethodGet {
		fields := make(map[string]any)
		for key, values := range c.Request.URL.Query() {
			if len(values) > 0 {
				fields[key] = json.Number(values[0])
			}
		}
		return fields, nil
	}

	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return fields, nil
		}
		return nil, err
	}
	return fields, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func writeResult(c *gin.Context, result gateway.Result) {
	switch result.Status {
	case gateway.StatusOK:
		if result.Raw != nil {
			c.Data(http.StatusOK, result.ContentType, result.Raw)
			return
		}
		body := result.Body
		if body == nil {
			body = map[string]any{"status": "ok"}
		}
		c.JSON(http.StatusOK, body)
	case gateway.StatusUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": result.Reason})
	case gateway.StatusRateLimited:
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": result.Reason})
	case gateway.StatusInvalidInput:
		body := gin.H{"error": result.Reason}
		if result.Field != "" {
			body["field"] = result.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case gateway.StatusBusy:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": result.Reason})
	case gateway.StatusTimeout:
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": result.Reason})
	case gateway.StatusUpstream:
		c.JSON(http.StatusBadGateway, gin.H{"error": result.Reason})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Reason})
	}
}

// retryAfterSeconds rounds up so a client honoring the header never retries
// inside the denial window.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		if logger == nil {
			return
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", latency),
		)
	}
}
