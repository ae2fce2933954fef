// Package content serves files below a content root over Fiber. Each request
// walks a fixed pipeline: resolve and guard the path, try the in-memory cache,
// stat the file, answer conditional requests, then either serve a byte range,
// stream a large file in fixed-size chunks under a concurrency limit, or read,
// optionally gzip, cache and send a small file. Streams and ranges are never
// cached; only buffered payloads are.
package content
