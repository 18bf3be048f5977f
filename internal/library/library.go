// Package library 读写下游消费者的库清单 cross_sections.xml。
//
// 清单列出每个库文件的类型（neutron/thermal/...）、材料列表与相对路径。
// (type, materials) 是清单内的唯一键：合并多个库时，先到先得。
package library

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/infra/fsx"
)

// FileName 是清单的固定文件名。
const FileName = "cross_sections.xml"

const (
	TypeNeutron = "neutron"
	TypeThermal = "thermal"
)

// Library 是清单中的一条库文件记录。
type Library struct {
	Materials string `xml:"materials,attr"`
	Path      string `xml:"path,attr"`
	Type      string `xml:"type,attr"`
}

// DataLibrary 是整份清单。
type DataLibrary struct {
	XMLName   xml.Name  `xml:"cross_sections"`
	Libraries []Library `xml:"library"`
}

// Key 返回记录在清单内的唯一键。
func (l Library) Key() string {
	return l.Type + "\x00" + l.Materials
}

// Register 追加一条记录；(type, materials) 已存在时替换其 path。
func (d *DataLibrary) Register(typ, materials, relPath string) {
	key := typ + "\x00" + materials
	for i := range d.Libraries {
		if d.Libraries[i].Key() == key {
			d.Libraries[i].Path = relPath
			return
		}
	}
	d.Libraries = append(d.Libraries, Library{Materials: materials, Path: relPath, Type: typ})
}

// Sort 按 (type, materials) 排序，保证清单输出稳定。
func (d *DataLibrary) Sort() {
	sort.SliceStable(d.Libraries, func(i, j int) bool {
		if d.Libraries[i].Type != d.Libraries[j].Type {
			return d.Libraries[i].Type < d.Libraries[j].Type
		}
		return d.Libraries[i].Materials < d.Libraries[j].Materials
	})
}

// Encode 序列化清单（带 XML 头，两空格缩进）。
func (d *DataLibrary) Encode() ([]byte, error) {
	b, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	return append([]byte(header), append(b, '\n')...), nil
}

// Load 读取 dir 下的清单；不存在时返回空清单（ok=false）。
func Load(dir string) (*DataLibrary, bool, error) {
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &DataLibrary{}, false, nil
		}
		return nil, false, err
	}
	var d DataLibrary
	if err := xml.Unmarshal(b, &d); err != nil {
		return nil, true, fmt.Errorf("解析 %s 失败：%w", FileName, err)
	}
	return &d, true, nil
}

// Save 把清单原子写入 dir（允许覆盖：清单是本工具的产物，不是用户数据）。
func Save(dir string, d *DataLibrary) error {
	d.Sort()
	b, err := d.Encode()
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, FileName, b)
}

// Combine 把多份库目录合并进 destDir：
// - 逐份读取 <lib>/cross_sections.xml，按传入顺序处理
// - (type, materials) 冲突时先到先得，后来者整条丢弃
// - copyFiles=true 时把被采纳记录的库文件复制进 destDir，path 改写为新相对路径；
//   copyFiles=false 时不复制，path 改写为指向原文件的绝对路径
// 返回采纳与丢弃的记录数。
func Combine(destDir string, libDirs []string, copyFiles bool) (adopted, dropped int, err error) {
	if len(libDirs) == 0 {
		return 0, 0, fmt.Errorf("没有待合并的库目录")
	}
	if err := fsx.EnsureDir(destDir); err != nil {
		return 0, 0, err
	}

	merged := &DataLibrary{}
	seen := map[string]struct{}{}

	for _, dir := range libDirs {
		d, exists, err := Load(dir)
		if err != nil {
			return adopted, dropped, err
		}
		if !exists {
			return adopted, dropped, fmt.Errorf("库目录 %q 缺少 %s", dir, FileName)
		}
		for _, lib := range d.Libraries {
			if _, dup := seen[lib.Key()]; dup {
				dropped++
				continue
			}
			src := lib.Path
			if !filepath.IsAbs(src) {
				src = filepath.Join(dir, filepath.FromSlash(lib.Path))
			}
			newPath := src
			if copyFiles {
				rel, err := copyIntoDest(src, destDir)
				if err != nil {
					return adopted, dropped, err
				}
				newPath = rel
			}
			seen[lib.Key()] = struct{}{}
			merged.Libraries = append(merged.Libraries, Library{
				Materials: lib.Materials,
				Path:      newPath,
				Type:      lib.Type,
			})
			adopted++
		}
	}

	if err := Save(destDir, merged); err != nil {
		return adopted, dropped, err
	}
	return adopted, dropped, nil
}

// copyIntoDest 把库文件复制进 destDir/<type 子目录保持原相对层级的末两级>，
// 返回写入清单的新相对路径（正斜杠）。
func copyIntoDest(src, destDir string) (string, error) {
	// 保留末级父目录（通常是 neutron/），避免不同类型的同名文件互踩。
	parent := filepath.Base(filepath.Dir(src))
	rel := filepath.Join(parent, filepath.Base(src))
	dst := filepath.Join(destDir, rel)

	if err := fsx.CopyFile(src, dst); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("目标已存在，拒绝覆盖：%q", dst)
		}
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// MaterialsFor 把核素名列表拼成清单的 materials 属性值（空格分隔，排序）。
func MaterialsFor(nuclides []string) string {
	out := append([]string(nil), nuclides...)
	sort.Strings(out)
	return strings.Join(out, " ")
}
