// Package hdf 把解析后的 ACE 数据表写成下游消费者读取的 HDF5 库文件。
//
// 单核素一个 .h5，按温度分组：
//
//	/<nuclide>/awr
//	/<nuclide>/kTs/<T>K
//	/<nuclide>/energy/<T>K
//	/<nuclide>/reactions/<T>K/{total,absorption,elastic,heating}
//
// 温度目录名取四舍五入到整数开尔文（293.6 K -> "294K"），
// 同一核素的多温度表共存于一个文件。
package hdf

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/scigolib/hdf5"

	"github.com/Song-Yulin/NDMC/internal/ace"
	"github.com/Song-Yulin/NDMC/internal/domain"
)

// TempKey 返回温度的数据集目录名（整数开尔文 + "K"）。
func TempKey(kelvin float64) string {
	return strconv.Itoa(int(math.Round(kelvin))) + "K"
}

// WriteNuclide 在 path 新建一个 HDF5 库文件并写入 nuc 的全部温度表。
//
// path 应当是临时位置；落位（原子 rename 到 out/neutron/）由调用方负责。
// tables 至少一张；全部表的 ZAID 必须解析为同一核素。
func WriteNuclide(path string, nuc domain.Nuclide, tables []*ace.Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("核素 %s 没有可写入的数据表", nuc)
	}
	for _, t := range tables {
		n, ok := t.Nuclide()
		if !ok || n != nuc {
			return fmt.Errorf("数据表 %s 不属于核素 %s", t.Name, nuc)
		}
	}

	// 升温排序：文件内温度目录的写入次序稳定。
	sorted := append([]*ace.Table(nil), tables...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].KT < sorted[j].KT })

	f, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("创建 HDF5 文件失败：%w", err)
	}

	// CreateDataset 要求父组已存在：写数据集前先补齐缺失的祖先组。
	groups := map[string]bool{}
	write := func(p string, data []float64) error {
		for i := 1; i < len(p); i++ {
			if p[i] != '/' {
				continue
			}
			g := p[:i]
			if groups[g] {
				continue
			}
			if _, err := f.CreateGroup(g); err != nil {
				return fmt.Errorf("写数据集 %s 失败：%w", p, err)
			}
			groups[g] = true
		}
		ds, err := f.CreateDataset(p, hdf5.Float64, []uint64{uint64(len(data))})
		if err != nil {
			return fmt.Errorf("写数据集 %s 失败：%w", p, err)
		}
		if err := ds.Write(data); err != nil {
			return fmt.Errorf("写数据集 %s 失败：%w", p, err)
		}
		return nil
	}
	writeAll := func() error {
		root := "/" + string(nuc)
		if err := write(root+"/awr", []float64{sorted[0].AWR}); err != nil {
			return err
		}

		// 同一 key 的后写会覆盖先写：取整冲突必须在写入前拒绝。
		seen := map[string]float64{}
		for _, t := range sorted {
			esz, err := t.ESZ()
			if err != nil {
				return fmt.Errorf("数据表 %s：%w", t.Name, err)
			}
			kelvin := t.Temperature()
			key := TempKey(kelvin)
			if prev, dup := seen[key]; dup {
				return fmt.Errorf("数据表 %s 的温度目录 %s 冲突：%.2fK 与 %.2fK 取整相同", t.Name, key, kelvin, prev)
			}
			seen[key] = kelvin

			if err := write(root+"/kTs/"+key, []float64{t.KT}); err != nil {
				return err
			}
			if err := write(root+"/energy/"+key, esz.Energy); err != nil {
				return err
			}
			rx := root + "/reactions/" + key
			for _, ds := range []struct {
				name string
				data []float64
			}{
				{"total", esz.Total},
				{"absorption", esz.Absorption},
				{"elastic", esz.Elastic},
				{"heating", esz.Heating},
			} {
				if err := write(rx+"/"+ds.name, ds.data); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := writeAll(); err != nil {
		_ = f.Close()
		return err
	}
	// 数据在 Close 时才保证落盘：错误必须上抛，调用方据此作废临时文件。
	if err := f.Close(); err != nil {
		return fmt.Errorf("写入 HDF5 文件失败：%w", err)
	}
	return nil
}

// Datasets 打开一个 HDF5 库文件并返回其中全部数据集路径（升序）。
// combine 用它确认被合并的 .h5 可读且非空。
func Datasets(path string) ([]string, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 HDF5 文件失败：%w", err)
	}
	defer f.Close()

	var names []string
	f.Walk(func(p string, obj hdf5.Object) {
		if _, ok := obj.(*hdf5.Dataset); ok {
			names = append(names, p)
		}
	})
	sort.Strings(names)
	return names, nil
}
