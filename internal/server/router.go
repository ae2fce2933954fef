package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContentHandler serves files below the content root. It allows injecting
// fake handlers during tests.
type ContentHandler interface {
	Serve(fiber.Ctx) error
}

// ContentHandlerFunc adapts a function to the ContentHandler interface.
type ContentHandlerFunc func(fiber.Ctx) error

// Serve makes ContentHandlerFunc satisfy ContentHandler.
func (f ContentHandlerFunc) Serve(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Content    ContentHandler
	ListenPort int
}

const contextKeyRequestID = "_mangahub_request_id"

// HeaderRequestID 是回写给客户端的请求 ID 响应头。
const HeaderRequestID = "X-Request-ID"

// NewApp builds a Fiber application with recovery, request ID and security
// header middlewares, then routes every non-diagnostics GET/HEAD to Content.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Content == nil {
		return nil, errors.New("content handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		AppName:       "manga-hub",
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(securityHeaders())

	app.Get("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Content.Serve(c)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set(HeaderRequestID, reqID)
		return c.Next()
	}
}

// securityHeaders 为所有响应统一附加防嗅探、禁止嵌入与 referrer 策略头。
// 漫画图片通常被其他站点的阅读器引用，因此放开 CORP。
func securityHeaders() fiber.Handler {
	return helmet.New(helmet.Config{
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		ReferrerPolicy:            "no-referrer",
		CrossOriginResourcePolicy: "cross-origin",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
