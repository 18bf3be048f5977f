package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegisterAndEncode(t *testing.T) {
	d := &DataLibrary{}
	d.Register(TypeNeutron, "U235", "neutron/U235.h5")
	d.Register(TypeNeutron, "Pu239", "neutron/Pu239.h5")
	// 同键重复登记：替换 path，不新增。
	d.Register(TypeNeutron, "U235", "neutron/U235.v2.h5")

	if len(d.Libraries) != 2 {
		t.Fatalf("期望 2 条记录，实际 %d", len(d.Libraries))
	}
	d.Sort()
	if d.Libraries[0].Materials != "Pu239" || d.Libraries[1].Path != "neutron/U235.v2.h5" {
		t.Fatalf("排序/替换结果不符：%+v", d.Libraries)
	}

	b, err := d.Encode()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	s := string(b)
	if !strings.HasPrefix(s, `<?xml version="1.0"`) {
		t.Fatal("缺少 XML 头")
	}
	if !strings.Contains(s, `<library materials="U235" path="neutron/U235.v2.h5" type="neutron">`) &&
		!strings.Contains(s, `<library materials="U235" path="neutron/U235.v2.h5" type="neutron"/>`) {
		t.Fatalf("记录未出现在输出里：\n%s", s)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	d := &DataLibrary{}
	d.Register(TypeNeutron, "U235", "neutron/U235.h5")
	if err := Save(dir, d); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, exists, err := Load(dir)
	if err != nil || !exists {
		t.Fatalf("exists=%v err=%v", exists, err)
	}
	if len(got.Libraries) != 1 || got.Libraries[0].Materials != "U235" {
		t.Fatalf("往返结果不符：%+v", got.Libraries)
	}
}

func TestLoad_Missing(t *testing.T) {
	d, exists, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if exists || len(d.Libraries) != 0 {
		t.Fatalf("空目录应返回空清单：exists=%v", exists)
	}
}

// 搭一个最小库目录：cross_sections.xml + neutron/<name>.h5。
func makeLib(t *testing.T, root string, entries map[string]string) string {
	t.Helper()
	d := &DataLibrary{}
	for materials, name := range entries {
		h5 := filepath.Join(root, "neutron", name)
		if err := os.MkdirAll(filepath.Dir(h5), 0o755); err != nil {
			t.Fatalf("创建目录失败：%v", err)
		}
		if err := os.WriteFile(h5, []byte("h5:"+materials), 0o644); err != nil {
			t.Fatalf("写入失败：%v", err)
		}
		d.Register(TypeNeutron, materials, "neutron/"+name)
	}
	if err := Save(root, d); err != nil {
		t.Fatalf("写清单失败：%v", err)
	}
	return root
}

func TestCombine(t *testing.T) {
	base := t.TempDir()
	libA := makeLib(t, filepath.Join(base, "endfb71"), map[string]string{
		"U235":  "U235.h5",
		"Pu239": "Pu239.h5",
	})
	// libB 与 libA 在 U235 上冲突：先到先得，libB 的 U235 丢弃。
	libB := makeLib(t, filepath.Join(base, "jeff32"), map[string]string{
		"U235": "U235.h5",
		"U238": "U238.h5",
	})

	dest := filepath.Join(base, "combined")
	adopted, dropped, err := Combine(dest, []string{libA, libB}, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if adopted != 3 || dropped != 1 {
		t.Fatalf("adopted=%d dropped=%d，期望 3/1", adopted, dropped)
	}

	// 采纳的是 libA 的 U235。
	b, err := os.ReadFile(filepath.Join(dest, "neutron", "U235.h5"))
	if err != nil || string(b) != "h5:U235" {
		t.Fatalf("U235 应来自第一个库：b=%q err=%v", b, err)
	}

	got, exists, err := Load(dest)
	if err != nil || !exists {
		t.Fatalf("exists=%v err=%v", exists, err)
	}
	if len(got.Libraries) != 3 {
		t.Fatalf("清单应有 3 条记录：%+v", got.Libraries)
	}
	for _, lib := range got.Libraries {
		if strings.Contains(lib.Path, "\\") {
			t.Fatalf("清单路径必须是正斜杠：%q", lib.Path)
		}
	}
}

func TestCombine_MissingManifest(t *testing.T) {
	base := t.TempDir()
	empty := filepath.Join(base, "empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if _, _, err := Combine(filepath.Join(base, "dest"), []string{empty}, true); err == nil {
		t.Fatal("缺清单的库目录应报错")
	}
}

func TestCombine_NoCopy(t *testing.T) {
	base := t.TempDir()
	libA := makeLib(t, filepath.Join(base, "endfb71"), map[string]string{
		"U235": "U235.h5",
	})

	dest := filepath.Join(base, "combined")
	adopted, dropped, err := Combine(dest, []string{libA}, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if adopted != 1 || dropped != 0 {
		t.Fatalf("adopted=%d dropped=%d，期望 1/0", adopted, dropped)
	}

	// 不复制：目标目录只有清单，path 指向原文件的绝对路径。
	if _, err := os.Stat(filepath.Join(dest, "neutron", "U235.h5")); !os.IsNotExist(err) {
		t.Fatalf("不应复制库文件：%v", err)
	}
	got, _, err := Load(dest)
	if err != nil {
		t.Fatalf("读清单失败：%v", err)
	}
	want := filepath.Join(libA, "neutron", "U235.h5")
	if len(got.Libraries) != 1 || got.Libraries[0].Path != want {
		t.Fatalf("path 应为原文件绝对路径 %q：%+v", want, got.Libraries)
	}
}

func TestMaterialsFor(t *testing.T) {
	if got := MaterialsFor([]string{"U238", "U235"}); got != "U235 U238" {
		t.Fatalf("MaterialsFor=%q", got)
	}
}
