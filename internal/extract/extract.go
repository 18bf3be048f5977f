// Package extract 把下载好的发行版归档解包进缓存目录。
//
// 支持发布方实际使用的容器格式：zip、tar、tar.gz/tgz、tar.bz2。
// 归档条目名不可信（发布站历史上出现过带绝对路径的 tar），
// 解包前逐条做路径穿越检查。
package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/domain"
)

// Error 是解包阶段的结构化错误（带 error_code）。
type Error struct {
	Archive string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s：解包 %q 失败：%v", domain.ErrCodeExtractFailed, e.Archive, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Archive 把归档 path 解包到 destDir（目录不存在则创建）。
// 返回解出的文件数。
func Archive(path, destDir string) (int, error) {
	n, err := extract(path, destDir)
	if err != nil {
		return n, &Error{Archive: filepath.Base(path), Err: err}
	}
	return n, nil
}

func extract(path, destDir string) (int, error) {
	destDir = filepath.Clean(destDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, err
	}

	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(path, destDir)
	case strings.HasSuffix(name, ".tar"):
		return extractTarFile(path, destDir, func(r io.Reader) (io.Reader, error) { return r, nil })
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTarFile(path, destDir, func(r io.Reader) (io.Reader, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr, nil
		})
	case strings.HasSuffix(name, ".tar.bz2"):
		return extractTarFile(path, destDir, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	default:
		return 0, fmt.Errorf("不支持的归档格式：%q", name)
	}
}

func extractZip(path, destDir string) (int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	count := 0
	for _, f := range zr.File {
		dst, err := securePath(destDir, f.Name)
		if err != nil {
			return count, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return count, err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return count, err
		}
		err = writeEntry(dst, rc)
		rc.Close()
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func extractTarFile(path, destDir string, wrap func(io.Reader) (io.Reader, error)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r, err := wrap(f)
	if err != nil {
		return 0, err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	tr := tar.NewReader(r)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		dst, err := securePath(destDir, hdr.Name)
		if err != nil {
			return count, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeEntry(dst, tr); err != nil {
				return count, err
			}
			count++
		default:
			// 符号链接等一律忽略：数据发布归档里只有目录和常规文件。
		}
	}
}

// securePath 把归档条目名映射到 destDir 下，并拒绝逃逸路径。
func securePath(destDir, name string) (string, error) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("归档条目使用绝对路径：%q", name)
	}
	dst := filepath.Clean(filepath.Join(destDir, name))
	if dst != destDir && !strings.HasPrefix(dst, destDir+string(filepath.Separator)) {
		return "", fmt.Errorf("归档条目逃逸解包目录：%q", name)
	}
	return dst, nil
}

func writeEntry(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// IsExtractError 判断 err 是否来自解包阶段。
func IsExtractError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
