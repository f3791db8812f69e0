package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/legacy-gateway/internal/core"
)

// Me returns the authenticated account.
// GET /api/users/@me
func Me(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, core.SelfUserPayload(account))
}
