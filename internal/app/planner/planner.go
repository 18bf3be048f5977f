package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/domain"
)

// ReadOutState 读取 out/neutron/ 的现状（只做 ReadDir，不读文件内容）。
// 若 outDir 不存在，返回空状态且不报错。
func ReadOutState(root string) (domain.OutState, error) {
	outDir := filepath.Join(root, "out", "neutron")
	st := domain.OutState{
		OutDir:        outDir,
		ExistingNames: map[string]struct{}{},
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return domain.OutState{}, err
	}

	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
		if strings.EqualFold(filepath.Ext(e.Name()), ".h5") {
			st.HasH5 = true
		}
	}
	return st, nil
}

// PlanItem 基于 WorkItem + OutState 生成确定性的执行计划（不做任何写入）。
// 产物已存在（<Nuclide>.h5）时 NeedConvert=false，整个 item 将被 skip。
func PlanItem(release string, files []domain.TableFile, item domain.WorkItem, st domain.OutState) (domain.ItemPlan, error) {
	srcAbs := make([]string, 0, len(item.FileIdx))
	for _, idx := range item.FileIdx {
		if idx < 0 || idx >= len(files) {
			return domain.ItemPlan{}, fmt.Errorf("非法 file index：%d", idx)
		}
		srcAbs = append(srcAbs, files[idx].AbsPath)
	}
	sort.Strings(srcAbs)

	dstName := string(item.Nuclide) + ".h5"
	_, exists := st.ExistingNames[dstName]

	return domain.ItemPlan{
		Nuclide:     item.Nuclide,
		Release:     release,
		SrcAbs:      srcAbs,
		DstAbs:      filepath.Join(st.OutDir, dstName),
		NeedConvert: !exists,
	}, nil
}

// SortPlans 让上层在需要时可显式保证稳定顺序（而不是依赖 map 遍历顺序）。
func SortPlans(plans []domain.ItemPlan) {
	sort.Slice(plans, func(i, j int) bool { return string(plans[i].Nuclide) < string(plans[j].Nuclide) })
}
