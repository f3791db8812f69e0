package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/legacy-gateway/internal/auth"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// ContextKeyAccount is the gin context key holding the authenticated *store.Account.
const ContextKeyAccount = "account"

// AuthMiddleware resolves the Authorization header to an account. Legacy
// clients send the raw token; "Bearer <token>" is accepted as well.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		account, err := authService.AccountByToken(c.Request.Context(), header)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyAccount, account)
		c.Next()
	}
}

// currentAccount returns the account stored by AuthMiddleware.
func currentAccount(c *gin.Context) (*store.Account, bool) {
	v, ok := c.Get(ContextKeyAccount)
	if !ok {
		return nil, false
	}
	account, ok := v.(*store.Account)
	return account, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
