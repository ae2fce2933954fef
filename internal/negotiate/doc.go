// Package negotiate contains the stateless header decisions made for every
// delivered file: MIME type, Cache-Control tier, whether a payload is worth
// compressing, If-None-Match matching, and the path+size
// derived ETag. ETags are computed without reading file content, so a file
// rewritten in place with the same name and size keeps its old ETag.
package negotiate
