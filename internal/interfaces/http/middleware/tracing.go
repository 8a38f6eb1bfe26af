package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName names the server in HTTP spans.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// Tracing returns the otelgin middleware, or a pass-through when disabled.
// Span names follow "METHOD route", e.g. "POST /qbwc".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanAttributes tags the request span with the request id and SOAP action
// and marks it failed on 5xx responses. It must run after Tracing.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if action := soapAction(c); action != "" {
			span.SetAttributes(attribute.String("soap.action", action))
		}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
			span.SetAttributes(attribute.Int("http.status_code", status))
		}
	}
}

// soapAction returns the method part of the SOAPAction header
func soapAction(c *gin.Context) string {
	action := strings.Trim(c.GetHeader("SOAPAction"), `" `)
	if i := strings.LastIndex(action, "/"); i >= 0 {
		action = action[i+1:]
	}
	return action
}
