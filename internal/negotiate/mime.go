package negotiate

import "strings"

// DefaultMIMEType 用于未知扩展名。
const DefaultMIMEType = "application/octet-stream"

const (
	cacheControlImmutable = "public, max-age=31536000, immutable"
	cacheControlMedium    = "public, max-age=86400"
	cacheControlShort     = "public, max-age=300"
)

var mimeTypes = map[string]string{
	"png":   "image/png",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"gif":   "image/gif",
	"bmp":   "image/bmp",
	"webp":  "image/webp",
	"avif":  "image/avif",
	"svg":   "image/svg+xml",
	"ico":   "image/x-icon",
	"html":  "text/html; charset=utf-8",
	"htm":   "text/html; charset=utf-8",
	"css":   "text/css; charset=utf-8",
	"js":    "application/javascript; charset=utf-8",
	"mjs":   "application/javascript; charset=utf-8",
	"json":  "application/json; charset=utf-8",
	"xml":   "application/xml; charset=utf-8",
	"txt":   "text/plain; charset=utf-8",
	"woff":  "font/woff",
	"woff2": "font/woff2",
}

var imageExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {},
	"webp": {}, "avif": {}, "svg": {}, "ico": {},
}

var compressibleExtensions = map[string]struct{}{
	"html": {}, "htm": {}, "css": {}, "js": {}, "mjs": {},
	"json": {}, "xml": {}, "svg": {}, "txt": {},
}

// Extension normalizes a file name or extension to a lowercase extension
// without the leading dot.
func Extension(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	if strings.ContainsAny(name, `/\`) {
		return ""
	}
	return strings.ToLower(name)
}

// MIMEType 根据扩展名返回 Content-Type，未知扩展名退回 octet-stream。
func MIMEType(ext string) string {
	if mt, ok := mimeTypes[Extension(ext)]; ok {
		return mt
	}
	return DefaultMIMEType
}

// CacheControl returns the Cache-Control tier for ext: images never change
// under the same name, stylesheets and scripts change occasionally, markup and
// data change often.
func CacheControl(ext string) string {
	e := Extension(ext)
	if _, ok := imageExtensions[e]; ok {
		return cacheControlImmutable
	}
	switch e {
	case "css", "js", "mjs":
		return cacheControlMedium
	}
	return cacheControlShort
}

// CompressibleExtension 判断扩展名是否属于文本类（不考虑长度）。
func CompressibleExtension(ext string) bool {
	_, ok := compressibleExtensions[Extension(ext)]
	return ok
}

// IsCompressible 仅对文本类扩展名且长度超过 minBytes 的正文返回 true。
func IsCompressible(ext string, length int64, minBytes int64) bool {
	if length <= minBytes {
		return false
	}
	return CompressibleExtension(ext)
}
