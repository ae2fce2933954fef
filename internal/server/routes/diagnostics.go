package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/manga-hub/manga-hub/internal/cache"
	"github.com/manga-hub/manga-hub/internal/negotiate"
	"github.com/manga-hub/manga-hub/internal/stream"
)

// Diagnostics 汇总 /-/ 诊断接口需要读取的共享组件，均为只读访问。
type Diagnostics struct {
	Cache   *cache.Memory
	Streams *stream.Limiter
	ETags   *negotiate.ETagger
	Metrics http.Handler
}

// RegisterDiagnosticsRoutes 暴露 /-/healthz、/-/stats 与 /-/metrics，供运维查询缓存与流状态。
func RegisterDiagnosticsRoutes(app *fiber.App, diag Diagnostics) {
	if app == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/-/stats", func(c fiber.Ctx) error {
		return c.JSON(encodeStats(diag))
	})

	if diag.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(diag.Metrics))
	}
}

type statsPayload struct {
	Cache   cache.Stats    `json:"cache"`
	Streams streamsPayload `json:"streams"`
	ETags   etagsPayload   `json:"etags"`
}

type streamsPayload struct {
	Active int64 `json:"active"`
	Max    int64 `json:"max"`
}

type etagsPayload struct {
	Entries int `json:"entries"`
}

func encodeStats(diag Diagnostics) statsPayload {
	var payload statsPayload
	if diag.Cache != nil {
		payload.Cache = diag.Cache.Stats()
	}
	if diag.Streams != nil {
		payload.Streams = streamsPayload{
			Active: diag.Streams.Active(),
			Max:    diag.Streams.Max(),
		}
	}
	if diag.ETags != nil {
		payload.ETags = etagsPayload{Entries: diag.ETags.Len()}
	}
	return payload
}
