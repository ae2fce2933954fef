package content

import (
	"bufio"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/manga-hub/manga-hub/internal/cache"
	"github.com/manga-hub/manga-hub/internal/logging"
	"github.com/manga-hub/manga-hub/internal/metrics"
	"github.com/manga-hub/manga-hub/internal/negotiate"
	"github.com/manga-hub/manga-hub/internal/server"
	"github.com/manga-hub/manga-hub/internal/stream"
)

const (
	// DefaultChunkSize 是流式传输时单次读取与 flush 的字节数。
	DefaultChunkSize = 64 << 10

	// HeaderCacheStatus 标记响应是否来自内存缓存（hit/miss）。
	HeaderCacheStatus = "X-Manga-Hub-Cache"

	// ResolvePath 拒绝含 NUL 的路径，gzip 键因此不会与任何真实文件路径重名。
	gzipKeySuffix = "\x00gzip"
)

// Observer receives per-request outcomes. *metrics.Recorder satisfies it.
type Observer interface {
	ObserveDelivery(outcome string, status int, duration time.Duration)
	ObserveStreamRejected()
}

// Options tunes the delivery pipeline.
type Options struct {
	DefaultDocument  string
	StreamThreshold  int64
	CompressMinBytes int64
	ChunkSize        int
	Observer         Observer
}

// Handler 负责 “路径解析 → 缓存查找 → 条件请求 → 区间/流式/缓冲分发” 的全流程，
// 对外暴露 Fiber handler。缓存与流限制器是仅有的共享可变状态。
type Handler struct {
	source  Source
	cache   *cache.Memory
	streams *stream.Limiter
	etags   *negotiate.ETagger
	logger  *logrus.Logger
	opts    Options
}

// NewHandler wires the delivery pipeline. A nil logger discards output and a
// zero ChunkSize falls back to DefaultChunkSize.
func NewHandler(
	source Source,
	memory *cache.Memory,
	streams *stream.Limiter,
	etags *negotiate.ETagger,
	logger *logrus.Logger,
	opts Options,
) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.DefaultDocument == "" {
		opts.DefaultDocument = "index.html"
	}
	return &Handler{
		source:  source,
		cache:   memory,
		streams: streams,
		etags:   etags,
		logger:  logger,
		opts:    opts,
	}
}

// delivery 保存单次请求在各阶段之间传递的状态，流式 goroutine 只读取它，不再访问 fiber.Ctx。
type delivery struct {
	started   time.Time
	requestID string
	path      string
	head      bool
}

// representation 是某个路径在本次协商下对应的缓存键与压缩意愿。
type representation struct {
	path string
	ext  string
	key  string
	gzip bool
}

func newRepresentation(rel string, acceptGzip bool) representation {
	ext := negotiate.Extension(rel)
	gzip := acceptGzip && negotiate.CompressibleExtension(ext)
	return representation{path: rel, ext: ext, key: cacheKey(rel, gzip), gzip: gzip}
}

// Serve 执行完整的分发状态机，任何阶段出错都会输出结构化日志。
func (h *Handler) Serve(c fiber.Ctx) error {
	req := &delivery{
		started:   time.Now(),
		requestID: server.RequestID(c),
		head:      c.Method() == fiber.MethodHead,
	}

	rel, err := ResolvePath(requestPath(c), h.opts.DefaultDocument)
	if err != nil {
		req.path = requestPath(c)
		return h.fail(c, req, "resolve", err)
	}
	return h.deliver(c, req, rel)
}

func (h *Handler) deliver(c fiber.Ctx, req *delivery, rel string) error {
	acceptGzip := acceptsGzip(c)
	file := newRepresentation(rel, acceptGzip)
	index := newRepresentation(path.Join(rel, h.opts.DefaultDocument), acceptGzip)

	// 目录 URL 的默认文档命中缓存时不再访问文件系统。
	if entry, ok := h.cache.GetFirst(file.key, index.key); ok {
		req.path = file.path
		if entry.Key == index.key {
			req.path = index.path
		}
		return h.serveCached(c, req, entry)
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req.path = rel
	info, err := h.source.Stat(ctx, rel)
	if errors.Is(err, ErrIsDirectory) {
		file = index
		req.path = index.path
		info, err = h.source.Stat(ctx, index.path)
		if errors.Is(err, ErrIsDirectory) {
			err = ErrNotFound
		}
	}
	if err != nil {
		return h.fail(c, req, "stat", err)
	}
	return h.load(ctx, c, req, file, info)
}

func (h *Handler) load(ctx context.Context, c fiber.Ctx, req *delivery, rep representation, info FileInfo) error {
	compress := rep.gzip && negotiate.IsCompressible(rep.ext, info.Size, h.opts.CompressMinBytes)
	headers := h.representationHeaders(rep.ext, h.etags.ETag(rep.path, info.Size), compress)

	if negotiate.MatchesETag(c.Get(fiber.HeaderIfNoneMatch), headers[fiber.HeaderETag]) {
		applyHeaders(c, headers)
		c.Status(fiber.StatusNotModified)
		h.finish(req, metrics.OutcomeNotModified, fiber.StatusNotModified, false, 0)
		return nil
	}

	if info.Size <= h.opts.StreamThreshold {
		return h.serveBuffered(ctx, c, req, rep.key, info, headers, compress)
	}

	delete(headers, fiber.HeaderContentEncoding)
	headers[fiber.HeaderAcceptRanges] = "bytes"
	if c.Get(fiber.HeaderRange) != "" {
		r, err := parseRange(c, info.Size)
		switch {
		case err == nil:
			return h.servePartial(ctx, c, req, info, headers, r)
		case errors.Is(err, ErrRangeNotSatisfiable):
			c.Set(fiber.HeaderContentRange, unsatisfiedRange(info.Size))
			return h.fail(c, req, "range", err)
		case !errors.Is(err, ErrMalformedRange):
			return h.fail(c, req, "range", err)
		}
		// 无法解析的 Range 头按普通请求处理。
	}
	return h.serveStream(ctx, c, req, info, headers)
}

func (h *Handler) serveCached(c fiber.Ctx, req *delivery, entry cache.Entry) error {
	applyHeaders(c, entry.Headers)
	c.Set(HeaderCacheStatus, "hit")

	if negotiate.MatchesETag(c.Get(fiber.HeaderIfNoneMatch), entry.Headers[fiber.HeaderETag]) {
		c.Status(fiber.StatusNotModified)
		h.finish(req, metrics.OutcomeNotModified, fiber.StatusNotModified, true, 0)
		return nil
	}

	c.Status(fiber.StatusOK)
	h.finish(req, metrics.OutcomeCacheHit, fiber.StatusOK, true, int64(len(entry.Payload)))
	return c.Send(entry.Payload)
}

func (h *Handler) serveBuffered(
	ctx context.Context,
	c fiber.Ctx,
	req *delivery,
	key string,
	info FileInfo,
	headers map[string]string,
	compress bool,
) error {
	f, err := h.source.Open(ctx, req.path)
	if err != nil {
		return h.fail(c, req, "open", err)
	}
	payload, err := ReadRange(f, 0, info.Size-1)
	f.Close()
	if err != nil {
		return h.fail(c, req, "read", err)
	}

	if compress {
		payload, err = Gzip(payload)
		if err != nil {
			return h.fail(c, req, "compress", err)
		}
	}

	h.cache.Set(key, payload, headers)

	applyHeaders(c, headers)
	c.Set(HeaderCacheStatus, "miss")
	c.Status(fiber.StatusOK)
	h.finish(req, metrics.OutcomeBuffered, fiber.StatusOK, false, int64(len(payload)))
	return c.Send(payload)
}

func (h *Handler) servePartial(
	ctx context.Context,
	c fiber.Ctx,
	req *delivery,
	info FileInfo,
	headers map[string]string,
	r byteRange,
) error {
	length, err := contentLength(r.length())
	if err != nil {
		return h.fail(c, req, "range", err)
	}

	applyHeaders(c, headers)
	c.Set(fiber.HeaderContentRange, r.contentRange(info.Size))
	c.Status(fiber.StatusPartialContent)

	if req.head {
		c.Response().Header.SetContentLength(length)
		h.finish(req, metrics.OutcomePartial, fiber.StatusPartialContent, false, 0)
		return nil
	}

	f, err := h.source.Open(ctx, req.path)
	if err != nil {
		c.Response().Header.Del(fiber.HeaderContentRange)
		return h.fail(c, req, "open", err)
	}

	h.finish(req, metrics.OutcomePartial, fiber.StatusPartialContent, false, r.length())
	// fasthttp 在写完响应后关闭实现了 io.Closer 的 body stream。
	return c.SendStream(&sectionFile{
		SectionReader: io.NewSectionReader(f, r.start, r.length()),
		file:          f,
	}, length)
}

func (h *Handler) serveStream(
	ctx context.Context,
	c fiber.Ctx,
	req *delivery,
	info FileInfo,
	headers map[string]string,
) error {
	if req.head {
		length, err := contentLength(info.Size)
		if err != nil {
			return h.fail(c, req, "stat", err)
		}
		applyHeaders(c, headers)
		c.Status(fiber.StatusOK)
		c.Response().Header.SetContentLength(length)
		h.finish(req, metrics.OutcomeStreamed, fiber.StatusOK, false, 0)
		return nil
	}

	slot, ok := h.streams.TryAcquire()
	if !ok {
		if h.opts.Observer != nil {
			h.opts.Observer.ObserveStreamRejected()
		}
		c.Set(fiber.HeaderRetryAfter, "1")
		return h.writeError(c, req, fiber.StatusServiceUnavailable, "streams_exhausted", nil)
	}

	f, err := h.source.Open(ctx, req.path)
	if err != nil {
		slot.Release()
		return h.fail(c, req, "open", err)
	}

	applyHeaders(c, headers)
	c.Status(fiber.StatusOK)
	size := info.Size
	chunkSize := h.opts.ChunkSize
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer slot.Release()
		defer f.Close()

		written, err := copyChunks(w, f, size, chunkSize)
		if err != nil {
			h.logStreamAborted(req, written, err)
			return
		}
		h.finish(req, metrics.OutcomeStreamed, fiber.StatusOK, false, written)
	})
}

// copyChunks 按 chunkSize 读取并逐块 flush；flush 失败意味着客户端已断开。
func copyChunks(w *bufio.Writer, f io.ReaderAt, size int64, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var offset int64
	for offset < size {
		want := int64(len(buf))
		if remaining := size - offset; remaining < want {
			want = remaining
		}
		n, err := f.ReadAt(buf[:want], offset)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return offset, werr
			}
			if ferr := w.Flush(); ferr != nil {
				return offset, ferr
			}
			offset += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, err
		}
	}
	return offset, nil
}

// representationHeaders 构建 200/206/304 共用的表示层响应头，同时也是缓存条目保存的头。
func (h *Handler) representationHeaders(ext, etag string, compress bool) map[string]string {
	headers := map[string]string{
		fiber.HeaderContentType:  negotiate.MIMEType(ext),
		fiber.HeaderCacheControl: negotiate.CacheControl(ext),
		fiber.HeaderETag:         etag,
	}
	if negotiate.CompressibleExtension(ext) {
		headers[fiber.HeaderVary] = fiber.HeaderAcceptEncoding
	}
	if compress {
		headers[fiber.HeaderContentEncoding] = "gzip"
		headers[fiber.HeaderETag] = gzipETag(etag)
	}
	return headers
}

func (h *Handler) fail(c fiber.Ctx, req *delivery, operation string, err error) error {
	switch {
	case errors.Is(err, ErrForbidden):
		return h.writeError(c, req, fiber.StatusForbidden, "forbidden", nil)
	case errors.Is(err, ErrNotFound):
		return h.writeError(c, req, fiber.StatusNotFound, "not_found", nil)
	case errors.Is(err, ErrRangeNotSatisfiable):
		return h.writeError(c, req, fiber.StatusRequestedRangeNotSatisfiable, "range_not_satisfiable", nil)
	default:
		h.logger.WithFields(logrus.Fields{
			"action":     "deliver",
			"path":       req.path,
			"operation":  operation,
			"request_id": req.requestID,
		}).WithError(err).Error("deliver_io_failed")
		return h.writeError(c, req, fiber.StatusInternalServerError, "internal_error", err)
	}
}

func (h *Handler) writeError(c fiber.Ctx, req *delivery, status int, code string, err error) error {
	h.observe(req, metrics.OutcomeError, status)
	fields := h.requestFields(req, status, false, 0)
	fields["error_code"] = code
	if err != nil {
		fields["error"] = err.Error()
	}
	h.logger.WithFields(fields).Warn("deliver_rejected")
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) finish(req *delivery, outcome string, status int, cacheHit bool, bytes int64) {
	h.observe(req, outcome, status)
	fields := h.requestFields(req, status, cacheHit, bytes)
	fields["outcome"] = outcome
	h.logger.WithFields(fields).Info("deliver_complete")
}

func (h *Handler) logStreamAborted(req *delivery, written int64, err error) {
	h.observe(req, metrics.OutcomeError, fiber.StatusOK)
	fields := h.requestFields(req, fiber.StatusOK, false, written)
	fields["outcome"] = metrics.OutcomeStreamed
	fields["error"] = err.Error()
	h.logger.WithFields(fields).Warn("stream_aborted")
}

func (h *Handler) observe(req *delivery, outcome string, status int) {
	if h.opts.Observer == nil {
		return
	}
	h.opts.Observer.ObserveDelivery(outcome, status, time.Since(req.started))
}

func (h *Handler) requestFields(req *delivery, status int, cacheHit bool, bytes int64) logrus.Fields {
	fields := logging.RequestFields(req.path, status, cacheHit)
	fields["bytes"] = bytes
	fields["elapsed_ms"] = time.Since(req.started).Milliseconds()
	if req.requestID != "" {
		fields["request_id"] = req.requestID
	}
	return fields
}

func applyHeaders(c fiber.Ctx, headers map[string]string) {
	for name, value := range headers {
		c.Set(name, value)
	}
}

// cacheKey 区分同一路径的原始与 gzip 表示，不接受 gzip 的客户端永远拿不到压缩体。
func cacheKey(rel string, gzip bool) string {
	if gzip {
		return rel + gzipKeySuffix
	}
	return rel
}

// acceptsGzip 交给 fiber 做 Accept-Encoding 的 q 值协商。缺少该头时 fiber 会返回
// 第一个候选，这里按未声明处理，只发送原始表示。
func acceptsGzip(c fiber.Ctx) bool {
	if c.Get(fiber.HeaderAcceptEncoding) == "" {
		return false
	}
	return c.AcceptsEncodings("gzip", "x-gzip") != ""
}

// contentLength 把字节数转换为 fasthttp 需要的 int，32 位平台上超过 2 GiB 时报错。
func contentLength(n int64) (int, error) {
	if n < 0 || int64(int(n)) != n {
		return 0, ErrTooLarge
	}
	return int(n), nil
}

// gzipETag 为压缩表示派生独立的强校验值。
func gzipETag(etag string) string {
	if strings.HasSuffix(etag, `"`) {
		return strings.TrimSuffix(etag, `"`) + `-gzip"`
	}
	return etag + "-gzip"
}

// requestPath 使用未经规范化的原始路径，fasthttp 的 Path() 会提前吞掉 ".."。
func requestPath(c fiber.Ctx) string {
	uri := c.Request().URI()
	raw := string(uri.PathOriginal())
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		raw = raw[:idx]
	}
	if raw == "" {
		return "/"
	}
	return raw
}

type sectionFile struct {
	*io.SectionReader
	file File
}

func (s *sectionFile) Close() error {
	return s.file.Close()
}
