package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/application/qbwc"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/logger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/dto"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/soap"
)

const (
	// EndpointPath is where the Web Connector posts its envelopes
	EndpointPath = "/qbwc"
	// ServiceName is reported by the health endpoint
	ServiceName = "qbsync"
	// StatusRecentLimit is how many journal entries GET /status lists
	StatusRecentLimit = 20
)

// Engine is the protocol engine behind the endpoint
type Engine interface {
	ServerVersion(ctx context.Context) string
	ClientVersion(ctx context.Context, version string) string
	Authenticate(ctx context.Context, username, password string) []string
	SendRequestXML(ctx context.Context, in qbwc.SendRequestInput) string
	ReceiveResponseXML(ctx context.Context, in qbwc.ReceiveResponseInput) int
	GetLastError(ctx context.Context, ticket string) string
	CloseConnection(ctx context.Context, ticket string) string
	ConnectionError(ctx context.Context, ticket, hresult, message string) string
	GetInteractiveURL(ctx context.Context) string
	InteractiveRejected(ctx context.Context, ticket string) string
	SessionCount() int
	Diagnostics(ctx context.Context, recent int) qbwc.Diagnostics
}

var _ Engine = (*qbwc.Service)(nil)

// dispatchFunc answers one decoded call with a response envelope
type dispatchFunc func(ctx context.Context, call soap.Call) []byte

// QBWCHandler serves the Web Connector endpoint and the plain status endpoints
type QBWCHandler struct {
	engine  Engine
	methods map[string]dispatchFunc
}

// NewQBWCHandler creates a new QBWCHandler
func NewQBWCHandler(engine Engine) *QBWCHandler {
	h := &QBWCHandler{engine: engine}
	h.methods = map[string]dispatchFunc{
		qbwc.MethodServerVersion: func(ctx context.Context, _ soap.Call) []byte {
			return soap.String(qbwc.MethodServerVersion, engine.ServerVersion(ctx))
		},
		qbwc.MethodClientVersion: func(ctx context.Context, call soap.Call) []byte {
			return soap.String(qbwc.MethodClientVersion, engine.ClientVersion(ctx, call.Param("strVersion")))
		},
		qbwc.MethodAuthenticate: func(ctx context.Context, call soap.Call) []byte {
			values := engine.Authenticate(ctx, call.Param("strUserName"), call.Param("strPassword"))
			return soap.Strings(qbwc.MethodAuthenticate, values)
		},
		qbwc.MethodSendRequestXML: func(ctx context.Context, call soap.Call) []byte {
			return soap.String(qbwc.MethodSendRequestXML, engine.SendRequestXML(ctx, qbwc.SendRequestInput{
				Ticket:          call.Param("ticket"),
				HCPResponse:     call.Param("strHCPResponse"),
				CompanyFileName: call.Param("strCompanyFileName"),
				Country:         call.Param("qbXMLCountry"),
				QBXMLMajor:      call.Param("qbXMLMajorVers"),
				QBXMLMinor:      call.Param("qbXMLMinorVers"),
			}))
		},
		qbwc.MethodReceiveResponseXML: func(ctx context.Context, call soap.Call) []byte {
			return soap.Int(qbwc.MethodReceiveResponseXML, engine.ReceiveResponseXML(ctx, qbwc.ReceiveResponseInput{
				Ticket:   call.Param("ticket"),
				Response: call.Param("response"),
				HResult:  call.Param("hresult"),
				Message:  call.Param("message"),
			}))
		},
		qbwc.MethodGetLastError: func(ctx context.Context, call soap.Call) []byte {
			return soap.String(qbwc.MethodGetLastError, engine.GetLastError(ctx, call.Param("ticket")))
		},
		qbwc.MethodCloseConnection: func(ctx context.Context, call soap.Call) []byte {
			return soap.String(qbwc.MethodCloseConnection, engine.CloseConnection(ctx, call.Param("ticket")))
		},
		qbwc.MethodConnectionError: func(ctx context.Context, call soap.Call) []byte {
			result := engine.ConnectionError(ctx, call.Param("ticket"), call.Param("hresult"), call.Param("message"))
			return soap.String(qbwc.MethodConnectionError, result)
		},
		qbwc.MethodGetInteractiveURL: func(ctx context.Context, _ soap.Call) []byte {
			return soap.String(qbwc.MethodGetInteractiveURL, engine.GetInteractiveURL(ctx))
		},
		qbwc.MethodInteractiveRejected: func(ctx context.Context, call soap.Call) []byte {
			return soap.String(qbwc.MethodInteractiveRejected, engine.InteractiveRejected(ctx, call.Param("ticket")))
		},
	}
	return h
}

// RegisterRoutes registers the endpoint, health and status routes
func (h *QBWCHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST(EndpointPath, h.Endpoint)
	r.GET("/", h.Health)
	r.GET("/status", h.Status)
}

// Endpoint decodes one SOAP call, dispatches it to the engine and writes the
// response envelope. Any failure, including a panic inside the engine,
// becomes a soap:Client fault with status 500.
func (h *QBWCHandler) Endpoint(c *gin.Context) {
	log := logger.FromGin(c)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Web Connector call panicked", zap.Any("panic", r), zap.Stack("stack"))
			h.fault(c, log, fmt.Sprintf("Internal error: %v", r))
		}
	}()

	call, err := soap.ParseCall(c.Request.Body)
	if err != nil {
		h.fault(c, log, fmt.Sprintf("Invalid SOAP request: %v", err))
		return
	}

	dispatch, ok := h.methods[call.Method]
	if !ok {
		h.fault(c, log, fmt.Sprintf("Unsupported SOAP method: %s", call.Method))
		return
	}

	log.Debug("Web Connector call", zap.String("soap_method", call.Method))
	c.Data(http.StatusOK, soap.ContentType, dispatch(c.Request.Context(), call))
}

func (h *QBWCHandler) fault(c *gin.Context, log *zap.Logger, message string) {
	log.Warn("Rejected Web Connector request", zap.String("fault", message))
	_ = c.Error(errors.New(message))
	c.Data(http.StatusInternalServerError, soap.ContentType, soap.Fault(message))
}

// Health reports liveness and the open session count
func (h *QBWCHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.Health{
		OK:       true,
		Service:  ServiceName,
		Endpoint: EndpointPath,
		Sessions: h.engine.SessionCount(),
	})
}

// Status returns engine diagnostics and the newest journaled requests
func (h *QBWCHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.engine.Diagnostics(c.Request.Context(), StatusRecentLimit)))
}
