package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/infra/fsx"
)

// Store 提供 <path>/cache/ 下的下载与解包缓存读写。
//
// 目录布局：
//   cache/downloads/<source>/<归档文件>
//   cache/downloads/<source>/manifest.json
//   cache/extracted/<source>/
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // <path>（扫描根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// ArchivePath 返回某来源下某归档文件的绝对路径。
func (s Store) ArchivePath(source, name string) (string, error) {
	src, err := cleanSource(source)
	if err != nil {
		return "", err
	}
	if err := cleanName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "cache", "downloads", src, name), nil
}

// StatArchive 返回已缓存归档的大小；不存在时 ok=false（不算错误）。
func (s Store) StatArchive(source, name string) (size int64, ok bool, err error) {
	path, err := s.ArchivePath(source, name)
	if err != nil {
		return 0, false, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !fi.Mode().IsRegular() {
		return 0, false, fmt.Errorf("缓存路径 %q 不是常规文件", path)
	}
	return fi.Size(), true, nil
}

// BeginArchive 为一次下载创建 .part 临时文件（调用方负责写入与 Close）。
func (s Store) BeginArchive(source, name string) (*os.File, error) {
	if s.ReadOnly {
		return nil, ErrReadOnly
	}
	path, err := s.ArchivePath(source, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path+".part", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// CommitArchive 把 .part 临时文件原子落位为最终归档名。
// 允许覆盖：重新下载同名归档即作废旧缓存。
func (s Store) CommitArchive(source, name string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.ArchivePath(source, name)
	if err != nil {
		return err
	}
	return fsx.Rename(path+".part", path)
}

// AbortArchive 丢弃 .part 临时文件（下载失败/校验失败时调用）。
func (s Store) AbortArchive(source, name string) error {
	path, err := s.ArchivePath(source, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path + ".part"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteReport 写入本次运行的 report.json（允许覆盖，原子写）。
func (s Store) WriteReport(data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomicReplace(filepath.Join(s.Root, "cache"), "report.json", data)
}

// ReadManifest 读取某来源的下载清单；不存在时 ok=false（不算错误）。
func (s Store) ReadManifest(source string) (data []byte, ok bool, err error) {
	src, err := cleanSource(source)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(filepath.Join(s.Root, "cache", "downloads", src, "manifest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WriteManifest 写入某来源的下载清单（允许覆盖）。
func (s Store) WriteManifest(source string, data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	src, err := cleanSource(source)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "cache", "downloads", src)
	return fsx.WriteFileAtomicReplace(dir, "manifest.json", data)
}

var sourceNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanSource(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("source 不能为空")
	}
	// 最小约束：避免路径穿越；source 名称本身是枚举（nndc/nea/psi），这里不做更多“聪明”处理。
	if !sourceNameRE.MatchString(s) {
		return "", fmt.Errorf("非法 source：%q", s)
	}
	return s, nil
}

func cleanName(name string) error {
	if name == "" {
		return fmt.Errorf("归档名不能为空")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("非法归档名：%q", name)
	}
	return nil
}
