package nuclide

import (
	"errors"
	"testing"

	"github.com/Song-Yulin/NDMC/internal/domain"
)

func tf(base string) domain.TableFile {
	return domain.TableFile{Base: base, Ext: ".ace"}
}

func TestExtract_Forms(t *testing.T) {
	cases := []struct {
		base string
		want domain.Nuclide
	}{
		{"U235", "U235"},                 // 符号形
		{"u-235", "U235"},                // 小写 + 连字符
		{"Am242m1", "Am242_m1"},          // 显式亚稳态序号
		{"Am242m", "Am242_m1"},           // TENDL：m 不带序号
		{"92235", "U235"},                // ZAID 形
		{"95642", "Am242_m1"},            // ZAID 亚稳态（A+400）
		{"n-092_U_235", "U235"},          // ENDF 评价文件命名
		{"n-095_Am_242m1", "Am242_m1"},   //
		{"ENDF_B-VII.1_U235_710nc", "U235"}, // 库名前缀不应干扰
	}
	for _, c := range cases {
		got, err := Extract(tf(c.base))
		if err != nil {
			t.Errorf("Extract(%q) 失败：%v", c.base, err)
			continue
		}
		if got != c.want {
			t.Errorf("Extract(%q)=%q，期望 %q", c.base, got, c.want)
		}
	}
}

func TestExtract_NoMatch(t *testing.T) {
	for _, base := range []string{"ACEs_293K", "readme", "xsdir"} {
		_, err := Extract(tf(base))
		var ue *UnmatchedError
		if !errors.As(err, &ue) || ue.Kind != "no_match" {
			t.Errorf("Extract(%q) 期望 no_match，实际：%v", base, err)
		}
	}
}

func TestExtract_Ambiguous(t *testing.T) {
	_, err := Extract(tf("U235_Pu239"))
	var ue *UnmatchedError
	if !errors.As(err, &ue) {
		t.Fatalf("期望 UnmatchedError，实际：%v", err)
	}
	if ue.Kind != "ambiguous" {
		t.Fatalf("期望 ambiguous，实际 %q", ue.Kind)
	}
	// 候选必须排好序，保证报告稳定。
	want := []domain.Nuclide{"Pu239", "U235"}
	if len(ue.Candidates) != len(want) {
		t.Fatalf("候选数量不符：%v", ue.Candidates)
	}
	for i := range want {
		if ue.Candidates[i] != want[i] {
			t.Fatalf("候选顺序不符：%v，期望 %v", ue.Candidates, want)
		}
	}
}

func TestExtract_SameNuclideTwiceIsUnique(t *testing.T) {
	// 同一核素以两种形态出现，仍是唯一候选。
	got, err := Extract(tf("92235_U235"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got != "U235" {
		t.Fatalf("Extract=%q，期望 U235", got)
	}
}
