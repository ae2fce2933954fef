package negotiate

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ETagger computes path+size ETags and memoizes them in a bounded map. When
// the memo is full the oldest inserted key is dropped first.
type ETagger struct {
	mu    sync.Mutex
	limit int
	tags  map[string]string
	order []string
	head  int
}

// NewETagger 创建最多缓存 limit 个 ETag 的计算器。
func NewETagger(limit int) *ETagger {
	if limit <= 0 {
		limit = 1
	}
	return &ETagger{
		limit: limit,
		tags:  make(map[string]string, limit),
		order: make([]string, 0, limit),
	}
}

// ComputeETag returns a strong ETag derived from path and size only.
func ComputeETag(path string, size int64) string {
	sum := xxhash.Sum64String(memoKey(path, size))
	return `"` + strconv.FormatInt(size, 16) + "-" + strconv.FormatUint(sum, 16) + `"`
}

// ETag 返回 path+size 对应的 ETag，优先读取内存中的结果。
func (e *ETagger) ETag(path string, size int64) string {
	key := memoKey(path, size)

	e.mu.Lock()
	defer e.mu.Unlock()

	if tag, ok := e.tags[key]; ok {
		return tag
	}

	tag := ComputeETag(path, size)
	if len(e.order) < e.limit {
		e.order = append(e.order, key)
	} else {
		// order 作为环形队列使用，head 指向最早写入的 key。
		delete(e.tags, e.order[e.head])
		e.order[e.head] = key
		e.head = (e.head + 1) % e.limit
	}
	e.tags[key] = tag
	return tag
}

// Len 返回当前缓存的 ETag 数量。
func (e *ETagger) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tags)
}

func memoKey(path string, size int64) string {
	return path + ":" + strconv.FormatInt(size, 10)
}
