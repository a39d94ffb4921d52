package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request. Upgraded control channels are
// logged when the upgrade handler returns, so their duration is the
// connection lifetime.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}
		if id := c.Param("request_id"); id != "" {
			event = event.Str("request_id", id)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Int("status", status).
			Bool("upgrade", isUpgrade(c)).
			Dur("duration", time.Since(start)).
			Msg("devserver.http request")
	}
}

// RequestMetricsMiddleware records per-route counts and latency. Websocket
// upgrades are counted but kept out of the latency histogram.
func RequestMetricsMiddleware(server string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		upgrade := isUpgrade(c)
		c.Next()

		elapsed := time.Since(start)
		if upgrade {
			elapsed = 0
		}
		RecordHTTPRequest(server, c.Request.Method, routeOf(c), c.Writer.Status(), elapsed)
	}
}

// routeOf prefers the registered route so ids do not explode label cardinality.
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
