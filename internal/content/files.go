package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// FileInfo 是分发流程需要的最小文件元数据。
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// File 支持随机读取，分块流式传输与区间请求都依赖它。
type File interface {
	io.ReaderAt
	io.Closer
}

// Source 抽象内容目录的只读访问。name 为已解析的、以 / 分隔的相对路径。
type Source interface {
	Stat(ctx context.Context, name string) (FileInfo, error)
	Open(ctx context.Context, name string) (File, error)
}

// NewFileSource 以 root 为根目录构建文件访问器，整站复用一份实例。
func NewFileSource(root string) (Source, error) {
	if root == "" {
		return nil, errors.New("content root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root: %w", err)
	}
	// 根目录本身若是符号链接，以真实路径作为包含关系判断的基准。
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat content root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content root %s is not a directory", abs)
	}

	return &fileSource{root: abs}, nil
}

type fileSource struct {
	root string
}

func (s *fileSource) Stat(ctx context.Context, name string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}

	filePath, err := s.path(name)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if isMissing(err) {
			return FileInfo{}, ErrNotFound
		}
		return FileInfo{}, err
	}
	if info.IsDir() {
		return FileInfo{}, ErrIsDirectory
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, ErrNotFound
	}

	return FileInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *fileSource) Open(ctx context.Context, name string) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// path joins name onto root and resolves symlinks; both the lexical and the
// resolved location must stay inside root.
func (s *fileSource) path(name string) (string, error) {
	rel := strings.TrimPrefix(name, "/")
	filePath := filepath.Join(s.root, filepath.FromSlash(rel))
	if !within(s.root, filePath) {
		return "", ErrForbidden
	}

	real, err := filepath.EvalSymlinks(filePath)
	if err != nil {
		if isMissing(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !within(s.root, real) {
		return "", ErrForbidden
	}
	return real, nil
}

// isMissing 把 "不存在" 与 "中间路径不是目录" 都视为未找到。
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// ReadRange 读取 [start, end]（闭区间）内的字节。
func ReadRange(f io.ReaderAt, start, end int64) ([]byte, error) {
	if end < start {
		return []byte{}, nil
	}
	buf := make([]byte, end-start+1)
	n, err := f.ReadAt(buf, start)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, err
	}
	return buf, nil
}
