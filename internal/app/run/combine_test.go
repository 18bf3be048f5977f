package run

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Song-Yulin/NDMC/internal/ace"
	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/hdf"
	"github.com/Song-Yulin/NDMC/internal/library"
)

// makeH5Lib 搭一个真实的最小库目录：cross_sections.xml + neutron/<N>.h5。
func makeH5Lib(t *testing.T, root string, tables map[string]string) string {
	t.Helper()
	d := &library.DataLibrary{}
	for nuc, aceName := range tables {
		tab, err := ace.ParseTable(strings.NewReader(sampleACE(aceName, 2.5301e-08)))
		if err != nil {
			t.Fatalf("解析样表失败：%v", err)
		}
		h5 := filepath.Join(root, "neutron", nuc+".h5")
		if err := os.MkdirAll(filepath.Dir(h5), 0o755); err != nil {
			t.Fatalf("创建目录失败：%v", err)
		}
		if err := hdf.WriteNuclide(h5, domain.Nuclide(nuc), []*ace.Table{tab}); err != nil {
			t.Fatalf("写 %s 失败：%v", h5, err)
		}
		d.Register(library.TypeNeutron, nuc, "neutron/"+nuc+".h5")
	}
	if err := library.Save(root, d); err != nil {
		t.Fatalf("写清单失败：%v", err)
	}
	return root
}

func TestCombine(t *testing.T) {
	base := t.TempDir()
	libA := makeH5Lib(t, filepath.Join(base, "endfb71"), map[string]string{
		"U235":  "92235.80c",
		"Pu239": "94239.80c",
	})
	// libB 与 libA 在 U235 上冲突：先到先得。
	libB := makeH5Lib(t, filepath.Join(base, "jeff32"), map[string]string{
		"U235": "92235.80c",
		"U238": "92238.80c",
	})

	dest := filepath.Join(base, "combined")
	rr := Combine(CombineOptions{DestDir: dest, LibDirs: []string{libA, libB}, Copy: true})

	if rr.Summary.Processed != 3 || rr.Summary.Failed != 0 || rr.Summary.Skipped != 1 {
		t.Fatalf("summary 不符：%+v items=%+v", rr.Summary, rr.Items)
	}
	for _, name := range []string{"U235.h5", "Pu239.h5", "U238.h5"} {
		if _, err := os.Stat(filepath.Join(dest, "neutron", name)); err != nil {
			t.Fatalf("应复制 %s：%v", name, err)
		}
	}
	if _, exists, err := library.Load(dest); err != nil || !exists {
		t.Fatalf("合并清单应可回读：exists=%v err=%v", exists, err)
	}
}

func TestCombine_NonEmptyDestRejected(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "combined")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dest, "junk"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	rr := Combine(CombineOptions{DestDir: dest, LibDirs: []string{base}, Copy: true})
	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeTargetConflict {
		t.Fatalf("非空目标目录应拒绝：%+v", rr.Items)
	}
}

func TestCombine_NoCopyKeepsOriginalPaths(t *testing.T) {
	base := t.TempDir()
	libA := makeH5Lib(t, filepath.Join(base, "endfb71"), map[string]string{"U235": "92235.80c"})

	dest := filepath.Join(base, "combined")
	rr := Combine(CombineOptions{DestDir: dest, LibDirs: []string{libA}, Copy: false})

	if rr.Summary.Processed != 1 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符：%+v items=%+v", rr.Summary, rr.Items)
	}
	if _, err := os.Stat(filepath.Join(dest, "neutron", "U235.h5")); !os.IsNotExist(err) {
		t.Fatalf("不复制模式不应产生库文件副本：%v", err)
	}
	d, _, err := library.Load(dest)
	if err != nil || len(d.Libraries) != 1 {
		t.Fatalf("清单不符：err=%v d=%+v", err, d)
	}
	if !filepath.IsAbs(d.Libraries[0].Path) {
		t.Fatalf("不复制模式应登记绝对路径：%q", d.Libraries[0].Path)
	}
}
