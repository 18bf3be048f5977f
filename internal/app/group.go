package app

import (
	"errors"
	"sort"

	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/nuclide"
)

// GroupByNuclide 把数据表文件按核素分组为 WorkItem（WorkItem 只存 file index）。
// 同一核素的多温度表聚到同一个 item，后续并入同一个 HDF5。
//
// - items 稳定排序：按核素名字典序
// - item 内 FileIdx 稳定排序：按 RelPath 字典序
func GroupByNuclide(files []domain.TableFile) (items []domain.WorkItem, unmatched []domain.Unmatched, err error) {
	index := make(map[domain.Nuclide]int, 128)
	items = make([]domain.WorkItem, 0, 128)
	unmatched = make([]domain.Unmatched, 0, 32)

	for i := range files {
		n, e := nuclide.Extract(files[i])
		if e != nil {
			var ue *nuclide.UnmatchedError
			if errors.As(e, &ue) {
				u := domain.Unmatched{
					File: files[i],
					Kind: ue.Kind,
				}
				if len(ue.Candidates) > 0 {
					u.Candidates = append([]domain.Nuclide(nil), ue.Candidates...)
				}
				unmatched = append(unmatched, u)
				continue
			}
			return nil, nil, e
		}

		if idx, ok := index[n]; ok {
			items[idx].FileIdx = append(items[idx].FileIdx, i)
			continue
		}
		index[n] = len(items)
		items = append(items, domain.WorkItem{
			Nuclide: n,
			FileIdx: []int{i},
		})
	}

	sort.Slice(items, func(i, j int) bool { return string(items[i].Nuclide) < string(items[j].Nuclide) })
	for i := range items {
		sort.Slice(items[i].FileIdx, func(a, b int) bool {
			ia := items[i].FileIdx[a]
			ib := items[i].FileIdx[b]
			return files[ia].RelPath < files[ib].RelPath
		})
	}
	return items, unmatched, nil
}
