package http

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	headerRequestID = "X-Request-ID"
	sessionTokenKey = "ct"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a browser-scoped token in the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(sessionTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(sessionTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// RequestLogger propagates X-Request-ID and logs each request once it is done.
// Successful requests are logged at debug unless verbose.
func RequestLogger(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(headerRequestID, reqID)
		c.Set("request_id", reqID)

		c.Next()

		status := c.Writer.Status()
		evt := log.Debug()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400 || verbose:
			evt = log.Info()
		}
		evt.Str("module", "adapters.http").
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request completed")
	}
}
