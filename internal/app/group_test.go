package app

import (
	"testing"

	"github.com/Song-Yulin/NDMC/internal/domain"
)

func tf(rel, base string) domain.TableFile {
	return domain.TableFile{RelPath: rel, Base: base, Ext: ".ace"}
}

func TestGroupByNuclide(t *testing.T) {
	files := []domain.TableFile{
		tf("600K/U235.ace", "U235"),   // 同核素高温表
		tf("293K/U235.ace", "U235"),   //
		tf("293K/Pu239.ace", "Pu239"), //
		tf("293K/README", "README"),   // 无法解析
	}

	items, unmatched, err := GroupByNuclide(files)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(items) != 2 {
		t.Fatalf("期望 2 个 item，实际 %d", len(items))
	}
	// items 按核素名排序。
	if items[0].Nuclide != "Pu239" || items[1].Nuclide != "U235" {
		t.Fatalf("顺序不符：%+v", items)
	}
	// U235 的两张表按 RelPath 排序聚到一起。
	if len(items[1].FileIdx) != 2 {
		t.Fatalf("U235 应有 2 个文件，实际 %d", len(items[1].FileIdx))
	}
	if files[items[1].FileIdx[0]].RelPath != "293K/U235.ace" {
		t.Fatalf("FileIdx 未按 RelPath 排序：%+v", items[1].FileIdx)
	}

	if len(unmatched) != 1 || unmatched[0].Kind != "no_match" {
		t.Fatalf("unmatched 不符：%+v", unmatched)
	}
}

func TestGroupByNuclide_Ambiguous(t *testing.T) {
	files := []domain.TableFile{tf("x/U235_Pu239.ace", "U235_Pu239")}

	items, unmatched, err := GroupByNuclide(files)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(items) != 0 {
		t.Fatalf("歧义文件不应成组：%+v", items)
	}
	if len(unmatched) != 1 || unmatched[0].Kind != "ambiguous" || len(unmatched[0].Candidates) != 2 {
		t.Fatalf("unmatched 不符：%+v", unmatched)
	}
}
