package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/hdf"
	"github.com/Song-Yulin/NDMC/internal/library"
)

// CombineOptions 是 combine 子命令的输入。
type CombineOptions struct {
	DestDir string   // 目标目录：必须为空或不存在
	LibDirs []string // 按优先级排列的库目录；(type, materials) 冲突先到先得
	Copy    bool     // false 时只登记原路径，不复制库文件
}

// Combine 把多份 HDF5 库合并成一份，并校验每个被采纳的库文件可读非空。
func Combine(opts CombineOptions) domain.RunReport {
	started := time.Now().UTC()

	rr := domain.RunReport{
		Path:      opts.DestDir,
		DryRun:    false,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 64),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	if entries, err := os.ReadDir(opts.DestDir); err == nil && len(entries) > 0 {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeTargetConflict, fmt.Sprintf("目标目录 %q 非空；合并只写入空目录或新目录", opts.DestDir)))
		return finish()
	} else if err != nil && !os.IsNotExist(err) {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("读取目标目录失败：%v", err)))
		return finish()
	}

	adopted, dropped, err := library.Combine(opts.DestDir, opts.LibDirs, opts.Copy)
	if err != nil {
		code := domain.ErrCodeIOFailed
		if strings.Contains(err.Error(), "拒绝覆盖") {
			code = domain.ErrCodeTargetConflict
		}
		rr.Items = append(rr.Items, syntheticFailed(code, fmt.Sprintf("合并失败（已采纳 %d 条）：%v", adopted, err)))
		return finish()
	}

	d, exists, err := library.Load(opts.DestDir)
	if err != nil || !exists {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("回读合并清单失败：exists=%v err=%v", exists, err)))
		return finish()
	}

	// 每条被采纳的记录一条 item；.h5 必须可读且至少含一个数据集。
	for _, lib := range d.Libraries {
		item := domain.ItemResult{
			Nuclide:    lib.Materials,
			Source:     lib.Type,
			Status:     domain.StatusProcessed,
			Candidates: []string{},
			Files: []domain.FileResult{{
				Src:    lib.Path,
				Dst:    lib.Path,
				Status: domain.FileStatusConverted,
			}},
		}

		abs := lib.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(opts.DestDir, filepath.FromSlash(lib.Path))
		}
		if names, err := hdf.Datasets(abs); err != nil {
			failItem(&item, domain.ErrCodeParseFailed, fmt.Sprintf("库文件 %s 不可读：%v", lib.Path, err))
		} else if len(names) == 0 {
			failItem(&item, domain.ErrCodeParseFailed, fmt.Sprintf("库文件 %s 不含任何数据集", lib.Path))
		}
		rr.Items = append(rr.Items, item)
	}

	// 丢弃数没有逐条归属（后来者整条丢弃），以一条 skipped 汇总。
	if dropped > 0 {
		rr.Items = append(rr.Items, domain.ItemResult{
			Status:     domain.StatusSkipped,
			ErrorMsg:   fmt.Sprintf("%d 条记录与先到的 (type, materials) 冲突，被丢弃", dropped),
			Candidates: []string{},
			Files:      []domain.FileResult{},
		})
	}

	return finish()
}
