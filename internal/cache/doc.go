// Package cache holds the in-memory, byte-budgeted response cache that sits in
// front of the content root. Entries are replayable response bodies plus the
// headers recorded when they were admitted. Recency is tracked with an
// index-based arena (dense slot slice + key index) so both lookups and
// evictions are O(1) without a heap allocation per node. A PressureMonitor
// periodically samples the Go heap and sheds cold entries when the rest of the
// process needs the memory back.
package cache
