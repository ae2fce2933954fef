package content

import "errors"

var (
	// ErrForbidden 表示请求路径越出内容根目录或包含非法字符。
	ErrForbidden = errors.New("path escapes content root")
	// ErrNotFound 表示目标文件不存在。
	ErrNotFound = errors.New("content not found")
	// ErrIsDirectory 表示目标是目录，调用方可以改为请求默认文档。
	ErrIsDirectory = errors.New("content is a directory")
	// ErrMalformedRange 表示 Range 头无法解析，调用方应忽略它。
	ErrMalformedRange = errors.New("malformed range header")
	// ErrRangeNotSatisfiable 表示请求的区间落在文件之外。
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	// ErrTooLarge 表示文件长度超出当前平台 int 的表示范围。
	ErrTooLarge = errors.New("content length overflows int")
)
