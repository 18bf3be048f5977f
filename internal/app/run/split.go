package run

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/endf"
	"github.com/Song-Yulin/NDMC/internal/infra/fsx"
)

// SplitOptions 是 split 子命令的输入。
type SplitOptions struct {
	File string // 待拆分的裂变产额磁带（多核素拼接的 ENDF ASCII）
	Dir  string // 输出目录；空串表示输入文件所在目录
}

// Split 把一条多核素磁带拆成逐核素评价文件（nfy-<ID>.endf）。
// 与 run 一样：单条记录失败不中断其余记录，全部降级为 item 结果。
func Split(opts SplitOptions) domain.RunReport {
	started := time.Now().UTC()

	dir := opts.Dir
	if dir == "" {
		dir = filepath.Dir(opts.File)
	}

	rr := domain.RunReport{
		Path:      dir,
		DryRun:    false,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 64),
	}

	data, err := os.ReadFile(opts.File)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("读取 %s 失败：%v", opts.File, err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	// 磁带自身的 TPID 头属于整条磁带：去掉它，记录内的标识行号才对齐。
	data, _ = endf.StripTPID(data)

	if err := fsx.EnsureDir(dir); err != nil {
		code := domain.ErrCodeIOFailed
		if fsx.IsPathTypeConflict(err) {
			code = domain.ErrCodeTargetConflict
		}
		rr.Items = append(rr.Items, syntheticFailed(code, fmt.Sprintf("创建输出目录失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	base := filepath.Base(opts.File)
	err = endf.SplitTape(bytes.NewReader(data), func(rec endf.Record) error {
		rr.Items = append(rr.Items, splitOne(dir, base, rec))
		return nil
	})
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeParseFailed, fmt.Sprintf("拆分 %s 失败：%v", base, err)))
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func splitOne(dir, base string, rec endf.Record) domain.ItemResult {
	src := fmt.Sprintf("%s#%d", base, rec.Index)
	item := domain.ItemResult{
		Nuclide:    rec.ID,
		Status:     domain.StatusProcessed,
		Candidates: []string{},
		Files: []domain.FileResult{{
			Src:    src,
			Status: domain.FileStatusPlanned,
		}},
	}

	if rec.Err != nil {
		return failItem(&item, domain.ErrCodeParseFailed, fmt.Sprintf("记录 %d：%v", rec.Index, rec.Err))
	}

	name := "nfy-" + rec.ID + ".endf"
	item.Files[0].Dst = name

	if err := fsx.WriteFileAtomicNoOverwrite(dir, name, rec.Data); err != nil {
		code := domain.ErrCodeIOFailed
		if errors.Is(err, os.ErrExist) || fsx.IsPathTypeConflict(err) {
			code = domain.ErrCodeTargetConflict
		}
		return failItem(&item, code, fmt.Sprintf("写入 %s 失败：%v", name, err))
	}

	item.Files[0].Status = domain.FileStatusConverted
	return item
}
