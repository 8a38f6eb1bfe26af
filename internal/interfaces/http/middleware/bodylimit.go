package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/soap"
)

// DefaultMaxBodyBytes bounds a Web Connector envelope. Catalog pages are the
// largest payloads the Web Connector posts.
const DefaultMaxBodyBytes int64 = 32 << 20

// BodyLimit rejects envelopes larger than maxBytes with a SOAP fault and caps
// streamed bodies at the same size
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.Data(http.StatusRequestEntityTooLarge, soap.ContentType,
				soap.Fault(fmt.Sprintf("Request body exceeds %d bytes.", maxBytes)))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
