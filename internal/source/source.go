// Package source 是数据发行版的只读目录：每个发行版来自哪个发布站、
// 由哪些归档组成、公布了什么校验和、需要打哪些公开勘误。
package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/fetch"
)

// Release 描述一个可处理的发行版。
type Release struct {
	Name   string // endfb71 / jeff32 / tendl21
	Source string // 发布站：nndc / nea / psi

	// BaseURL 同时是归档下载前缀与发布页索引地址（官方站点都是目录式索引）。
	BaseURL string

	Files []fetch.File

	// Subdirs 指定某些归档解包时的目标子目录（键为归档名；未列出的解到根）。
	// 例如 JEFF-3.2 的 293K 归档不带顶层目录，需要单独的子目录避免与其他温度混在一起。
	Subdirs map[string]string

	// Patches 是发布方公开勘误（按 base name 匹配，逐字替换一处）。
	Patches []domain.Patch
}

// ExtractSubdir 返回归档 name 解包时应使用的子目录（空串表示解到根）。
func (r Release) ExtractSubdir(name string) string {
	return r.Subdirs[name]
}

// jeff32Temps 是 JEFF-3.2 发布的全部处理温度（K）。
var jeff32Temps = []string{
	"293", "400", "500", "600", "700", "800", "900",
	"1000", "1200", "1500", "1800",
}

var catalog = buildCatalog()

func buildCatalog() map[string]Release {
	endfb71 := Release{
		Name:    "endfb71",
		Source:  "nndc",
		BaseURL: "http://www.nndc.bnl.gov/endf-b7.1/aceFiles/",
		Files: []fetch.File{
			{
				Name: "ENDF-B-VII.1-neutron-293.6K.tar.gz",
				MD5:  "9729a17eb62b75f285d8a7628ace1449",
			},
			{
				Name: "ENDF-B-VII.1-tsl.tar.gz",
				MD5:  "e17d827c92940a30f22f096d910ea186",
			},
		},
		// S(a,b) 表里两处错误的 ZAID 指派（发布方确认，上游一直未修）。
		Patches: []domain.Patch{
			{File: "bebeo.acer", Old: "8016", New: "   0"},
			{File: "obeo.acer", Old: "4009", New: "   0"},
		},
	}

	jeff32 := Release{
		Name:    "jeff32",
		Source:  "nea",
		BaseURL: "https://www.oecd-nea.org/dbforms/data/eva/evatapes/jeff_32/Processed/",
	}
	for _, t := range jeff32Temps {
		jeff32.Files = append(jeff32.Files, fetch.File{Name: "JEFF32-ACE-" + t + "K.tar.gz"})
	}
	jeff32.Files = append(jeff32.Files, fetch.File{Name: "TSLs.tar.gz"})
	// 293K 归档没有顶层目录，解到专门的子目录。
	jeff32.Subdirs = map[string]string{"JEFF32-ACE-293K.tar.gz": "ACEs_293K"}

	tendl21 := Release{
		Name:    "tendl21",
		Source:  "psi",
		BaseURL: "https://tendl.web.psi.ch/tendl_2021/tar_files/",
		Files: []fetch.File{
			{Name: "tendl21c.tar.bz2"},
		},
	}

	out := map[string]Release{}
	for _, r := range []Release{endfb71, jeff32, tendl21} {
		for i := range r.Files {
			if r.Files[i].URL == "" {
				r.Files[i].URL = r.BaseURL + r.Files[i].Name
			}
		}
		out[r.Name] = r
	}
	return out
}

// Lookup 按名字取发行版。
func Lookup(name string) (Release, bool) {
	r, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

// Names 返回全部发行版名（升序）。
func Names() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WithMirror 把归档下载地址改写到镜像站（保持文件名与校验和不变）。
func (r Release) WithMirror(base string) (Release, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return r, nil
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return Release{}, fmt.Errorf("镜像地址必须是 http/https：%q", base)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	out := r
	out.BaseURL = base
	out.Files = append([]fetch.File(nil), r.Files...)
	for i := range out.Files {
		out.Files[i].URL = base + out.Files[i].Name
	}
	return out, nil
}
