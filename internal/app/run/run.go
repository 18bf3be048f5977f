package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Song-Yulin/NDMC/internal/ace"
	"github.com/Song-Yulin/NDMC/internal/app"
	"github.com/Song-Yulin/NDMC/internal/app/planner"
	"github.com/Song-Yulin/NDMC/internal/config"
	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/extract"
	"github.com/Song-Yulin/NDMC/internal/fetch"
	"github.com/Song-Yulin/NDMC/internal/hdf"
	"github.com/Song-Yulin/NDMC/internal/infra/cache"
	"github.com/Song-Yulin/NDMC/internal/infra/fsx"
	"github.com/Song-Yulin/NDMC/internal/infra/httpx"
	"github.com/Song-Yulin/NDMC/internal/library"
	"github.com/Song-Yulin/NDMC/internal/scan"
	"github.com/Song-Yulin/NDMC/internal/source"
)

// manifest 是 cache/downloads/<release>/manifest.json 的内容：
// 本次运行结束时缓存里每个归档的落盘字节数。
type manifest struct {
	Release  string           `json:"release"`
	Archives map[string]int64 `json:"archives"`
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Path:      eff.Path,
		Release:   eff.Release,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}

	rel, ok := source.Lookup(eff.Release)
	if !ok {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("未知发行版 %q；可用：%v", eff.Release, source.Names())))
		return finish(&rr, eff, cache.Store{ReadOnly: true})
	}
	rel, err := rel.WithMirror(eff.MirrorBaseURL)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("mirror_base_url 无效：%v", err)))
		return finish(&rr, eff, cache.Store{ReadOnly: true})
	}

	indexClient, err := httpx.NewIndexClient(eff.ProxyURL)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err)))
		return finish(&rr, eff, cache.Store{ReadOnly: true})
	}

	store := cache.New(eff.Path, !eff.Apply)

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	// fetch：先核对发布页索引，再（apply）并发下载归档。
	// 索引校验失败降级为一条失败，不终止运行：已下载/已解包的数据仍可继续处理。
	fetchStarted := time.Now()
	indexOK := true
	if err := source.VerifyIndex(ctx, indexClient, rel); err != nil {
		indexOK = false
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeFetchFailed, humanizeIndexError(err)))
	}

	var freshArchives map[string]bool
	if eff.Apply && indexOK {
		fileClient, e := httpx.NewFileClient(eff.ProxyURL)
		if e != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", e)))
			return finish(&rr, eff, store)
		}

		var (
			mu      sync.Mutex
			skipped int
			failed  []domain.ItemResult
			man     = manifest{Release: rel.Name, Archives: map[string]int64{}}
		)
		freshArchives = map[string]bool{}

		// 上次运行的清单：发布方未公布大小的归档（nea/psi），
		// 用上次落盘并通过校验的字节数做跳过判定。
		var prev manifest
		if b, ok, _ := store.ReadManifest(rel.Name); ok {
			_ = json.Unmarshal(b, &prev)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, f := range rel.Files {
			f := f
			// 只在「缓存字节数与清单一致」时把清单大小当作期望值；
			// 缓存缺失时保持 Size=0，不把旧清单当成发布方的承诺。
			if f.Size == 0 {
				if size, ok, _ := store.StatArchive(rel.Name, f.Name); ok && size > 0 && size == prev.Archives[f.Name] {
					f.Size = size
				}
			}
			g.Go(func() error {
				_, skip, err := fetch.Download(gctx, fileClient, store, rel.Name, f, nil)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					code := fetch.Code(err)
					if code == "" {
						code = domain.ErrCodeFetchFailed
					}
					failed = append(failed, syntheticFailed(code, humanizeDownloadError(f.Name, err)))
					// 单个归档失败不取消兄弟下载。
					return nil
				}
				if skip {
					skipped++
				} else {
					freshArchives[f.Name] = true
				}
				if size, ok, _ := store.StatArchive(rel.Name, f.Name); ok {
					man.Archives[f.Name] = size
				}
				return nil
			})
		}
		_ = g.Wait()

		// 失败条目排序后并入，保证 report 确定性。
		sort.Slice(failed, func(i, j int) bool { return failed[i].ErrorMsg < failed[j].ErrorMsg })
		rr.Items = append(rr.Items, failed...)

		if b, e := json.Marshal(man); e == nil {
			_ = store.WriteManifest(rel.Name, b)
		}

		if obs != nil {
			obs.OnPhaseDone("fetch", map[string]any{
				"archives": len(rel.Files),
				"skipped":  skipped,
				"failed":   len(failed),
			}, time.Since(fetchStarted))
		}
	} else if obs != nil {
		obs.OnPhaseDone("fetch", map[string]any{
			"archives": len(rel.Files),
			"index_ok": indexOK,
		}, time.Since(fetchStarted))
	}

	// extract：只在 apply 下解包。归档已有且解包树已存在时跳过（幂等）。
	if eff.Apply {
		extractStarted := time.Now()
		destRoot := filepath.Join(eff.Path, "ace", rel.Name)
		_, statErr := os.Stat(destRoot)
		freshTree := os.IsNotExist(statErr)

		var archives, entries int
		for _, f := range rel.Files {
			if _, ok, _ := store.StatArchive(rel.Name, f.Name); !ok {
				continue
			}
			if !freshTree && !freshArchives[f.Name] {
				continue
			}
			path, e := store.ArchivePath(rel.Name, f.Name)
			if e != nil {
				rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, e.Error()))
				continue
			}
			dest := destRoot
			if sub := rel.ExtractSubdir(f.Name); sub != "" {
				dest = filepath.Join(destRoot, sub)
			}
			n, e := extract.Archive(path, dest)
			if e != nil {
				rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeExtractFailed, fmt.Sprintf("解包 %s 失败：%v", f.Name, e)))
				continue
			}
			archives++
			entries += n
		}

		// 发行版公开勘误在解包后立刻打到磁盘上（幂等），
		// 这样热散射等不进转换管线的文件也能被修正。
		var patched int
		if archives > 0 && len(rel.Patches) > 0 {
			n, errs := applyReleasePatches(destRoot, rel.Patches)
			patched = n
			for _, e := range errs {
				rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, e.Error()))
			}
		}

		if obs != nil {
			obs.OnPhaseDone("extract", map[string]any{
				"archives": archives,
				"entries":  entries,
				"patched":  patched,
			}, time.Since(extractStarted))
		}
	}

	scanStarted := time.Now()
	files, err := scan.ScanTables(eff.Path, eff.ExcludeDirs)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish(&rr, eff, store)
	}
	scanDur := time.Since(scanStarted)

	absToRel := make(map[string]string, len(files))
	for i := range files {
		absToRel[files[i].AbsPath] = files[i].RelPath
	}

	groupStarted := time.Now()
	items, unmatched, err := app.GroupByNuclide(files)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("分组失败：%v", err)))
		return finish(&rr, eff, store)
	}
	groupDur := time.Since(groupStarted)

	if obs != nil {
		// 输出按文档约定：scan 行同时展示 files + unmatched（unmatched 来自分组阶段）。
		obs.OnPhaseDone("scan", map[string]any{
			"files":     len(files),
			"unmatched": len(unmatched),
		}, scanDur)
		obs.OnPhaseDone("group", map[string]any{
			"nuclides": len(items),
		}, groupDur)
	}

	// unmatched：每个输入文件单独形成一条 item（更可解释，便于用户逐个修复）。
	for _, u := range unmatched {
		rr.Items = append(rr.Items, unmatchedItem(u))
	}

	planStarted := time.Now()
	st, err := planner.ReadOutState(eff.Path)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("读取 out 状态失败：%v", err)))
		return finish(&rr, eff, store)
	}
	plans := make([]domain.ItemPlan, 0, len(items))
	for _, it := range items {
		p, e := planner.PlanItem(eff.Release, files, it, st)
		if e != nil {
			rr.Items = append(rr.Items, failedPlanItem(rel.Source, it, files, absToRel, domain.ErrCodeIOFailed, fmt.Sprintf("规划失败：%v", e)))
			continue
		}
		plans = append(plans, p)
	}
	planner.SortPlans(plans)
	planDur := time.Since(planStarted)

	if obs != nil {
		var needConvert int
		for i := range plans {
			if plans[i].NeedConvert {
				needConvert++
			}
		}
		obs.OnPhaseDone("plan", map[string]any{
			"items":        len(plans),
			"need_convert": needConvert,
		}, planDur)
	}

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(plans),
		}, 0)
	}

	// 执行阶段：按核素并发（worker pool），item 内串行。
	type execResult struct {
		nuc domain.Nuclide
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.ItemPlan)
	results := make(chan execResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				oneStarted := time.Now()
				r := execOne(eff, p, rel.Source, absToRel)
				results <- execResult{
					nuc: p.Nuclide,
					res: r,
					dur: time.Since(oneStarted),
				}
			}
		}()
	}

	go func() {
		for _, p := range plans {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs != nil {
			obs.OnItemDone(done, len(plans), it.nuc, it.res, it.dur)
		}
	}

	// library：把本轮产出（含已存在而 skip 的）登记进 out/cross_sections.xml。
	if eff.Apply {
		libStarted := time.Now()
		registered := registerLibraries(&rr, eff.Path)
		if obs != nil {
			obs.OnPhaseDone("library", map[string]any{
				"registered": registered,
			}, time.Since(libStarted))
		}
	}

	return finish(&rr, eff, store)
}

// finish 补齐结束时间、排序汇总，并在 apply 下落盘 report.json。
func finish(rr *domain.RunReport, eff config.EffectiveConfig, store cache.Store) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	if eff.Apply {
		if b, err := json.MarshalIndent(rr, "", "  "); err == nil {
			_ = store.WriteReport(append(b, '\n'))
		}
	}
	return *rr
}

func registerLibraries(rr *domain.RunReport, root string) int {
	outRoot := filepath.Join(root, "out")
	d, exists, err := library.Load(outRoot)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("读取 %s 失败：%v", library.FileName, err)))
		return 0
	}

	registered := 0
	for _, it := range rr.Items {
		if it.Nuclide == "" {
			continue
		}
		if it.Status != domain.StatusProcessed && it.Status != domain.StatusSkipped {
			continue
		}
		d.Register(library.TypeNeutron, it.Nuclide, "neutron/"+it.Nuclide+".h5")
		registered++
	}
	if registered == 0 && !exists {
		// 没有任何产物时不无故创建 out/。
		return 0
	}

	if err := fsx.EnsureDir(outRoot); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("创建 out 失败：%v", err)))
		return 0
	}
	if err := library.Save(outRoot, d); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("写入 %s 失败：%v", library.FileName, err)))
		return 0
	}
	return registered
}

// applyReleasePatches 把发行版公开勘误打到解包树上（按 base name 匹配）。
// ApplyPatch 未命中不回写，重复运行不会二次修改。
func applyReleasePatches(root string, patches []domain.Patch) (int, []error) {
	byBase := make(map[string][]domain.Patch, len(patches))
	for _, p := range patches {
		k := strings.ToLower(p.File)
		byBase[k] = append(byBase[k], p)
	}

	var (
		patched int
		errs    []error
	)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		hits := byBase[strings.ToLower(d.Name())]
		if len(hits) == 0 {
			return nil
		}

		b, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("勘误 %s 失败：%w", d.Name(), err))
			return nil
		}
		changed := false
		for _, p := range hits {
			var hit bool
			b, hit = ace.ApplyPatch(b, p.Old, p.New)
			changed = changed || hit
		}
		if !changed {
			return nil
		}
		if err := fsx.WriteFileAtomicReplace(filepath.Dir(path), d.Name(), b); err != nil {
			errs = append(errs, fmt.Errorf("勘误 %s 失败：%w", d.Name(), err))
			return nil
		}
		patched++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fmt.Errorf("遍历解包树失败：%w", walkErr))
	}
	return patched, errs
}

func unmatchedItem(u domain.Unmatched) domain.ItemResult {
	item := domain.ItemResult{
		Nuclide:    "",
		Source:     "",
		Status:     domain.StatusUnmatched,
		ErrorCode:  domain.ErrCodeUnmatchedNuclide,
		Candidates: []string{},
		Files: []domain.FileResult{{
			Src:    u.File.RelPath,
			Dst:    "",
			Status: domain.FileStatusFailed,
		}},
	}

	switch u.Kind {
	case "ambiguous":
		item.Candidates = make([]string, 0, len(u.Candidates))
		for _, c := range u.Candidates {
			item.Candidates = append(item.Candidates, string(c))
		}
		item.ErrorMsg = fmt.Sprintf("解析到多个不同核素（ambiguous）：%v；请重命名文件使其只包含一个核素标识", item.Candidates)
	default:
		item.ErrorMsg = "无法从文件名解析出核素；请确保文件名包含类似 U235 或 92235.80c 的片段"
	}
	return item
}

func failedPlanItem(src string, it domain.WorkItem, files []domain.TableFile, absToRel map[string]string, code, msg string) domain.ItemResult {
	out := domain.ItemResult{
		Nuclide:    string(it.Nuclide),
		Source:     src,
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
		Candidates: []string{},
		Files:      make([]domain.FileResult, 0, len(it.FileIdx)),
	}
	for _, idx := range it.FileIdx {
		if idx < 0 || idx >= len(files) {
			continue
		}
		rel := files[idx].RelPath
		if rel == "" {
			rel = absToRel[files[idx].AbsPath]
		}
		out.Files = append(out.Files, domain.FileResult{Src: rel, Dst: "", Status: domain.FileStatusFailed})
	}
	return out
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Nuclide:    "",
		Source:     "",
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
		Candidates: []string{},
		Files:      []domain.FileResult{},
	}
}

func execOne(eff config.EffectiveConfig, p domain.ItemPlan, src string, absToRel map[string]string) domain.ItemResult {
	item := domain.ItemResult{
		Nuclide:    string(p.Nuclide),
		Source:     src,
		Status:     domain.StatusProcessed, // 失败时覆盖
		Candidates: []string{},
		Files:      buildFileResults(eff, p, absToRel),
	}

	if !p.NeedConvert {
		item.Status = domain.StatusSkipped
		return item
	}

	// 读源 + 勘误 + 解析：dry-run 与 apply 走同一条校验路径。
	tables := make([]*ace.Table, 0, len(p.SrcAbs))
	for i, srcPath := range p.SrcAbs {
		b, err := os.ReadFile(srcPath)
		if err != nil {
			return failItem(&item, domain.ErrCodeIOFailed, fmt.Sprintf("读取 %s 失败：%v", item.Files[i].Src, err))
		}

		if strings.Contains(string(p.Nuclide), "_m") {
			fixed, _, err := ace.EnsureMetastableZAID(b)
			if err != nil {
				return failItem(&item, domain.ErrCodeParseFailed, fmt.Sprintf("修正 %s 的亚稳态 ZAID 失败：%v", item.Files[i].Src, err))
			}
			b = fixed
		}

		t, err := ace.ParseTable(bytes.NewReader(b))
		if err != nil {
			return failItem(&item, domain.ErrCodeParseFailed, fmt.Sprintf("解析 %s 失败：%v", item.Files[i].Src, err))
		}
		n, ok := t.Nuclide()
		if !ok || n != p.Nuclide {
			return failItem(&item, domain.ErrCodeParseFailed, fmt.Sprintf("数据表 %s 的 ZAID 与核素 %s 不一致", t.Name, p.Nuclide))
		}
		tables = append(tables, t)
	}

	// dry-run：校验到此为止；不落盘。
	if !eff.Apply {
		return item
	}

	outDir := filepath.Dir(p.DstAbs)
	if err := fsx.EnsureDir(outDir); err != nil {
		code := domain.ErrCodeIOFailed
		if fsx.IsPathTypeConflict(err) {
			code = domain.ErrCodeTargetConflict
		}
		return failItem(&item, code, err.Error())
	}

	// 转换：写临时文件，落位是最后一步（失败不留半成品）。
	dstName := filepath.Base(p.DstAbs)
	tmp := filepath.Join(outDir, "."+dstName+".tmp")
	if err := hdf.WriteNuclide(tmp, p.Nuclide, tables); err != nil {
		_ = os.Remove(tmp)
		return failItem(&item, domain.ErrCodeConvertFailed, fmt.Sprintf("写入 %s 失败：%v", dstName, err))
	}
	if err := fsx.PlaceFileNoOverwrite(tmp, outDir, dstName); err != nil {
		_ = os.Remove(tmp)
		code := domain.ErrCodeIOFailed
		if errors.Is(err, os.ErrExist) || fsx.IsPathTypeConflict(err) {
			code = domain.ErrCodeTargetConflict
		}
		return failItem(&item, code, err.Error())
	}

	for i := range item.Files {
		item.Files[i].Status = domain.FileStatusConverted
	}
	return item
}

func failItem(item *domain.ItemResult, code, msg string) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	for i := range item.Files {
		item.Files[i].Status = domain.FileStatusFailed
	}
	return *item
}

func buildFileResults(eff config.EffectiveConfig, p domain.ItemPlan, absToRel map[string]string) []domain.FileResult {
	dst := ""
	if rel, err := filepath.Rel(eff.Path, p.DstAbs); err == nil {
		dst = rel
	} else {
		dst = p.DstAbs
	}

	out := make([]domain.FileResult, 0, len(p.SrcAbs))
	for _, abs := range p.SrcAbs {
		src := absToRel[abs]
		if src == "" {
			// 兜底：尽量输出相对路径；失败则输出原始 abs（至少可追溯）。
			if rel, err := filepath.Rel(eff.Path, abs); err == nil {
				src = rel
			} else {
				src = abs
			}
		}
		out = append(out, domain.FileResult{
			Src:    src,
			Dst:    dst,
			Status: domain.FileStatusPlanned,
		})
	}
	return out
}

func humanizeIndexError(err error) string {
	var ie *source.IndexError
	if errors.As(err, &ie) {
		if len(ie.Missing) > 0 {
			return fmt.Sprintf("发布页 %s 缺少预期归档链接：%v（发布方可能重组了目录；可在 ndmc.json 配置 mirror_base_url）", ie.URL, ie.Missing)
		}
		return fmt.Sprintf("获取发布页 %s 失败：%v（建议检查网络/代理，或配置 mirror_base_url）", ie.URL, ie.Err)
	}
	return err.Error()
}

func humanizeDownloadError(name string, err error) string {
	msg := err.Error()
	low := strings.ToLower(msg)
	switch {
	case fetch.Code(err) == domain.ErrCodeChecksumMismatch:
		return fmt.Sprintf("归档 %s 校验失败：%v（下载可能被篡改或截断；删除缓存后重试）", name, err)
	case strings.Contains(low, "http 404"):
		return fmt.Sprintf("归档 %s 不存在（HTTP 404）：发布方可能已迁移；可在 ndmc.json 配置 mirror_base_url", name)
	case strings.Contains(low, "http 403"), strings.Contains(low, "http 429"):
		return fmt.Sprintf("下载 %s 被拒绝（限流/拦截）：建议降低并发或配置 proxy.url", name)
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(low, "timeout"):
		return fmt.Sprintf("下载 %s 超时：建议检查网络/代理后重试", name)
	default:
		return fmt.Sprintf("下载 %s 失败：%v", name, err)
	}
}
