package cache

import (
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const (
	// MaxEntryFraction 是单个条目相对总容量的上限，超过即拒绝缓存。
	MaxEntryFraction = 0.1
	// PressureHighWater 为堆使用率高水位，超过后触发批量淘汰。
	PressureHighWater = 0.8
	// PressureTarget 为批量淘汰后的目标占用比例。
	PressureTarget = 0.5
)

// noSlot marks an absent neighbour in the recency list.
const noSlot int32 = -1

// Entry 是一次可重放的响应：正文（可能已压缩）与写入时记录的响应头。
type Entry struct {
	Key            string
	Payload        []byte
	Headers        map[string]string
	SizeBytes      int64
	HitCount       uint64
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Stats 是缓存状态的只读快照。
type Stats struct {
	Entries       int     `json:"entries"`
	UsedBytes     int64   `json:"used_bytes"`
	CapacityBytes int64   `json:"capacity_bytes"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Evictions     uint64  `json:"evictions"`
}

type slot struct {
	entry Entry
	prev  int32
	next  int32
	live  bool
}

// Memory is a byte-budgeted LRU keyed by string. Slots live in a dense slice;
// freed slots are recycled through a free list so steady-state operation does
// not allocate list nodes. head is the most recently used slot.
type Memory struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	slots    []slot
	free     []int32
	index    map[string]int32
	head     int32
	tail     int32

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	entryPermille int64
	now           func() time.Time
}

// Option 调整 Memory 的可选行为。
type Option func(*Memory)

// WithMaxEntryFraction overrides MaxEntryFraction. Values outside (0, 1] are
// ignored.
func WithMaxEntryFraction(fraction float64) Option {
	return func(m *Memory) {
		if fraction > 0 && fraction <= 1 {
			m.entryPermille = int64(math.Round(fraction * 1000))
		}
	}
}

// WithClock 注入时钟，测试中用于固定 CreatedAt/LastAccessedAt。
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory 按字节容量构建缓存实例，进程内整站复用一份。
func NewMemory(capacityBytes int64, opts ...Option) *Memory {
	if capacityBytes < 0 {
		capacityBytes = 0
	}
	m := &Memory{
		capacity:      capacityBytes,
		index:         make(map[string]int32),
		head:          noSlot,
		tail:          noSlot,
		entryPermille: int64(math.Round(MaxEntryFraction * 1000)),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AdmissionLimit 返回允许写入的单条目最大字节数。
func (m *Memory) AdmissionLimit() int64 {
	return m.capacity * m.entryPermille / 1000
}

// Capacity 返回构造时设定的字节预算。
func (m *Memory) Capacity() int64 {
	return m.capacity
}

// Get returns a copy of the entry stored under key and marks it most recently
// used. The returned payload must be treated as read-only.
func (m *Memory) Get(key string) (Entry, bool) {
	return m.GetFirst(key)
}

// GetFirst 按顺序尝试 keys，返回第一个命中的条目，Entry.Key 标明命中的键。
// 整次查找只计一次命中或未命中。
func (m *Memory) GetFirst(keys ...string) (Entry, bool) {
	m.mu.Lock()
	for _, key := range keys {
		idx, ok := m.index[key]
		if !ok {
			continue
		}

		s := &m.slots[idx]
		s.entry.HitCount++
		s.entry.LastAccessedAt = m.now()
		m.moveToFront(idx)
		entry := s.entry
		entry.Headers = cloneHeaders(s.entry.Headers)
		m.mu.Unlock()

		m.hits.Inc()
		return entry, true
	}
	m.mu.Unlock()

	m.misses.Inc()
	return Entry{}, false
}

// Set stores payload under key, evicting least recently used entries until the
// budget holds. Payloads larger than AdmissionLimit are ignored and Set
// reports false; the cache state is left untouched in that case.
func (m *Memory) Set(key string, payload []byte, headers map[string]string) bool {
	size := int64(len(payload))
	if size > m.AdmissionLimit() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.index[key]; ok {
		m.remove(idx)
	}

	for m.used+size > m.capacity && m.tail != noSlot {
		m.remove(m.tail)
		m.evictions.Inc()
	}

	now := m.now()
	idx := m.alloc()
	m.slots[idx] = slot{
		entry: Entry{
			Key:            key,
			Payload:        payload,
			Headers:        cloneHeaders(headers),
			SizeBytes:      size,
			CreatedAt:      now,
			LastAccessedAt: now,
		},
		prev: noSlot,
		next: noSlot,
		live: true,
	}
	m.index[key] = idx
	m.pushFront(idx)
	m.used += size
	return true
}

// Delete 移除指定 key，返回是否存在。
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.index[key]
	if !ok {
		return false
	}
	m.remove(idx)
	return true
}

// AdaptToPressure sheds least recently used entries until usage drops to
// PressureTarget of capacity, but only when heapUsedRatio is above
// PressureHighWater. It returns the number of evicted entries.
func (m *Memory) AdaptToPressure(heapUsedRatio float64) int {
	if heapUsedRatio <= PressureHighWater {
		return 0
	}

	target := int64(float64(m.capacity) * PressureTarget)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for m.used > target && m.tail != noSlot {
		m.remove(m.tail)
		evicted++
	}
	m.evictions.Add(uint64(evicted))
	return evicted
}

// Stats 返回当前快照，不修改任何状态。
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	entries := len(m.index)
	used := m.used
	m.mu.Unlock()

	hits := m.hits.Load()
	misses := m.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:       entries,
		UsedBytes:     used,
		CapacityBytes: m.capacity,
		Hits:          hits,
		Misses:        misses,
		HitRate:       rate,
		Evictions:     m.evictions.Load(),
	}
}

// Keys 按最近使用到最久未使用的顺序返回所有 key，用于诊断与测试。
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.index))
	for idx := m.head; idx != noSlot; idx = m.slots[idx].next {
		keys = append(keys, m.slots[idx].entry.Key)
	}
	return keys
}

// alloc 优先复用空闲槽位，否则在 slots 末尾追加。
func (m *Memory) alloc() int32 {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		return idx
	}
	m.slots = append(m.slots, slot{prev: noSlot, next: noSlot})
	return int32(len(m.slots) - 1)
}

// remove unlinks idx, releases its bytes and recycles the slot. Callers hold mu.
func (m *Memory) remove(idx int32) {
	s := &m.slots[idx]
	if !s.live {
		return
	}
	m.unlink(idx)
	delete(m.index, s.entry.Key)
	m.used -= s.entry.SizeBytes
	*s = slot{prev: noSlot, next: noSlot}
	m.free = append(m.free, idx)
}

func (m *Memory) moveToFront(idx int32) {
	if m.head == idx {
		return
	}
	m.unlink(idx)
	m.pushFront(idx)
}

func (m *Memory) pushFront(idx int32) {
	s := &m.slots[idx]
	s.prev = noSlot
	s.next = m.head
	if m.head != noSlot {
		m.slots[m.head].prev = idx
	}
	m.head = idx
	if m.tail == noSlot {
		m.tail = idx
	}
}

func (m *Memory) unlink(idx int32) {
	s := &m.slots[idx]
	if s.prev != noSlot {
		m.slots[s.prev].next = s.next
	} else {
		m.head = s.next
	}
	if s.next != noSlot {
		m.slots[s.next].prev = s.prev
	} else {
		m.tail = s.prev
	}
	s.prev = noSlot
	s.next = noSlot
}

func cloneHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	cloned := make(map[string]string, len(headers))
	for k, v := range headers {
		cloned[k] = v
	}
	return cloned
}
