// Package fetch 负责把发行版归档从发布站下载进缓存。
//
// 下载策略与上游发布方式绑定：
// - 归档体积大（数百 MB 起步），流式写盘，不整体驻留内存
// - 已缓存且大小一致的归档直接跳过（发布的归档内容不可变）
// - MD5 与发布页公布的校验和核对，不一致的下载作废
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/infra/cache"
)

// File 描述一个待下载的归档。
type File struct {
	Name string
	URL  string
	Size int64  // 期望字节数；0 表示发布方未公布
	MD5  string // 十六进制；空串表示发布方未公布
}

// Error 是下载阶段的结构化错误（带 error_code）。
type Error struct {
	Code string // domain.ErrCodeFetchFailed / domain.ErrCodeChecksumMismatch
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：%s：%v", e.Code, e.URL, e.Err)
	}
	return fmt.Sprintf("%s：%s", e.Code, e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// copyChunk 是流式写盘的分块大小。
const copyChunk = 1 << 20

// Download 把 f 下载到 store 的 <source> 归档缓存，返回落盘后的绝对路径。
//
// skipped=true 表示缓存里已有同名同大小的归档，本次未发起网络请求。
// progress 可为 nil；非 nil 时按块回调累计写入字节数。
func Download(ctx context.Context, client *http.Client, store cache.Store, source string, f File, progress func(written int64)) (path string, skipped bool, err error) {
	path, err = store.ArchivePath(source, f.Name)
	if err != nil {
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}

	if size, ok, statErr := store.StatArchive(source, f.Name); statErr == nil && ok {
		if f.Size > 0 && size == f.Size {
			return path, true, nil
		}
		// 大小不符：视为断尾/过期缓存，重新下载覆盖。
	} else if statErr != nil {
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: statErr}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	out, err := store.BeginArchive(source, f.Name)
	if err != nil {
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}
	abort := func() { _ = out.Close(); _ = store.AbortArchive(source, f.Name) }

	h := md5.New()
	written, err := copyWithProgress(out, io.TeeReader(resp.Body, h), progress)
	if err != nil {
		abort()
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}
	if err := out.Sync(); err != nil {
		abort()
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}
	if err := out.Close(); err != nil {
		_ = store.AbortArchive(source, f.Name)
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}

	if f.Size > 0 && written != f.Size {
		_ = store.AbortArchive(source, f.Name)
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL,
			Err: fmt.Errorf("大小不符：期望 %d 字节，实际 %d", f.Size, written)}
	}
	if f.MD5 != "" {
		got := hex.EncodeToString(h.Sum(nil))
		if !strings.EqualFold(got, f.MD5) {
			_ = store.AbortArchive(source, f.Name)
			return "", false, &Error{Code: domain.ErrCodeChecksumMismatch, URL: f.URL,
				Err: fmt.Errorf("MD5 不符：期望 %s，实际 %s", f.MD5, got)}
		}
	}

	if err := store.CommitArchive(source, f.Name); err != nil {
		return "", false, &Error{Code: domain.ErrCodeFetchFailed, URL: f.URL, Err: err}
	}
	return path, false, nil
}

func copyWithProgress(dst io.Writer, src io.Reader, progress func(written int64)) (int64, error) {
	buf := make([]byte, copyChunk)
	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if progress != nil {
				progress(written)
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
