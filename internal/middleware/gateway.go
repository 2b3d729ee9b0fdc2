package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
	"github.com/noah-isme/studio-booking-api/pkg/response"
)

// GatewaySecretHeader carries the shared secret of the payment gateway.
const GatewaySecretHeader = "X-Gateway-Secret"

// GatewaySecret admits requests carrying the configured shared secret. With
// an empty secret every request is rejected.
func GatewaySecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(GatewaySecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid gateway secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}
