// Package devserver serves the Lambda handler over plain HTTP for local
// development.
package devserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

type LambdaHandler interface {
	Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

type RouterConfig struct {
	Handler     LambdaHandler
	CORSOrigins []string
	Logger      *slog.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(CORS(cfg.CORSOrigins))

	r.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Handler != nil {
		r.POST("/", proxy(cfg.Handler))
	}
	return r
}

func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Correlation-Id"},
		ExposeHeaders: []string{"X-Correlation-Id"},
		MaxAge:        12 * time.Hour,
	})
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Info("http request",
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// proxy converts the request into an API Gateway proxy event, so the handler
// sees the same input locally as it does behind API Gateway.
func proxy(h LambdaHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_INPUT", "message": "unreadable body"})
			return
		}

		resp, err := h.Handle(c.Request.Context(), toEvent(c.Request, body))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "the assistant is temporarily unavailable"})
			return
		}
		for k, v := range resp.Headers {
			c.Header(k, v)
		}
		for k, vs := range resp.MultiValueHeaders {
			for _, v := range vs {
				c.Writer.Header().Add(k, v)
			}
		}
		c.Status(resp.StatusCode)
		if resp.Body != "" {
			_, _ = c.Writer.WriteString(resp.Body)
		}
	}
}

func toEvent(r *http.Request, body []byte) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	multi := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
		multi[k] = append([]string(nil), vs...)
	}

	query := make(map[string]string)
	multiQuery := make(map[string][]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
		multiQuery[k] = append([]string(nil), vs...)
	}

	return events.APIGatewayProxyRequest{
		Resource:                        "/",
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         headers,
		MultiValueHeaders:               multi,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		Body:                            string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Identity:   events.APIGatewayRequestIdentity{SourceIP: r.RemoteAddr, UserAgent: r.UserAgent()},
		},
	}
}
