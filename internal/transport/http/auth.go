package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Заголовки аутентификации. Токены разбирает внешний шлюз, сюда приходит
// уже проверенная identity.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

const principalKey = "principal"

// authRequired требует identity-заголовки и кладёт принципала в контекст.
func authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiResponse{
				Success: false,
				Code:    "unauthorized",
				Message: "missing identity headers",
			})
			return
		}

		c.Set(principalKey, domain.Principal{
			ID:    userID,
			Email: c.GetHeader(HeaderUserEmail),
			Role:  c.GetHeader(HeaderUserRole),
		})
		c.Next()
	}
}

// adminRequired пропускает только принципалов с административной ролью.
func adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principalFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, apiResponse{
				Success: false,
				Code:    string(domain.ReasonAccessDenied),
				Message: "admin role required",
			})
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) domain.Principal {
	value, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}
	}
	principal, _ := value.(domain.Principal)
	return principal
}
