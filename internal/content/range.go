package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// byteRange 是闭区间 [start, end]。
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

func (r byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, size)
}

func unsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// parseRange resolves the request's Range header against size with fiber's
// c.Range. Only a single "bytes=start-end", "bytes=start-" or "bytes=-suffix"
// range is honoured; multi-range requests, non-numeric bounds and an explicit
// start past end return ErrMalformedRange so the caller can fall back to the
// full body. fiber drops a suffix longer than the file, so that case is
// clamped to the whole file here.
func parseRange(c fiber.Ctx, size int64) (byteRange, error) {
	first, last, err := rangeBounds(c.Get(fiber.HeaderRange))
	if err != nil {
		return byteRange{}, err
	}
	if first == "" && size > 0 {
		if suffix, _ := strconv.ParseInt(last, 10, 64); suffix > size {
			return byteRange{start: 0, end: size - 1}, nil
		}
	}

	n, err := contentLength(size)
	if err != nil {
		return byteRange{}, err
	}
	resolved, err := c.Range(n)
	switch {
	case errors.Is(err, fiber.ErrRequestedRangeNotSatisfiable):
		return byteRange{}, ErrRangeNotSatisfiable
	case err != nil:
		return byteRange{}, ErrMalformedRange
	case len(resolved.Ranges) != 1:
		return byteRange{}, ErrMalformedRange
	}
	r := resolved.Ranges[0]
	return byteRange{start: int64(r.Start), end: int64(r.End)}, nil
}

// rangeBounds 只做语法检查：单个区间、两端为十进制数字、显式的 start 不大于 end。
func rangeBounds(header string) (string, string, error) {
	_, ranges, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok || strings.Contains(ranges, ",") {
		return "", "", ErrMalformedRange
	}
	first, last, ok := strings.Cut(ranges, "-")
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if !ok || (first == "" && last == "") || !digits(first) || !digits(last) {
		return "", "", ErrMalformedRange
	}
	if first != "" && last != "" {
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil {
			return "", "", ErrMalformedRange
		}
		end, err := strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return "", "", ErrMalformedRange
		}
	}
	return first, last, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
