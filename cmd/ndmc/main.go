package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Song-Yulin/NDMC/internal/app/run"
	"github.com/Song-Yulin/NDMC/internal/config"
	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/source"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "split":
		if code := splitCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "combine":
		if code := combineCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:       ra.Path,
		Release:    ra.Release,
		ReleaseSet: ra.ReleaseSet,
		Apply:      ra.Apply,
		ApplySet:   ra.ApplySet,
	})
	if err != nil {
		rr := reportForConfigError(cwdAbs, ra, err)
		emitReport(rr)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(context.Background(), eff, obs)

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 && rr.Summary.Unmatched == 0 {
		return 0
	}
	return 1
}

func splitCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printSplitUsage()
			return 0
		}
	}

	opts, err := parseSplitArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printSplitUsage()
		return 2
	}

	rr := run.Split(opts)
	emitReport(rr)
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func combineCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printCombineUsage()
			return 0
		}
	}

	opts, err := parseCombineArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printCombineUsage()
		return 2
	}

	rr := run.Combine(opts)
	emitReport(rr)
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

type runArgs struct {
	Path       string
	Release    string
	ReleaseSet bool
	Apply      bool
	ApplySet   bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--release":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--release 需要一个值")
			}
			i++
			ra.Release = args[i]
			ra.ReleaseSet = true
		case strings.HasPrefix(a, "--release="):
			ra.Release = strings.TrimPrefix(a, "--release=")
			ra.ReleaseSet = true
		case a == "--apply":
			ra.Apply = true
			ra.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ra.Apply = true
			case "false":
				ra.Apply = false
			default:
				return runArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ra.ApplySet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	if ra.ReleaseSet {
		if ra.Release == "" {
			return runArgs{}, fmt.Errorf("--release 不能为空")
		}
		if _, ok := source.Lookup(ra.Release); !ok {
			return runArgs{}, fmt.Errorf("--release 只能是 %s，实际是 %q",
				strings.Join(source.Names(), "|"), ra.Release)
		}
	}

	return ra, nil
}

func parseSplitArgs(args []string) (run.SplitOptions, error) {
	opts := run.SplitOptions{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-d" || a == "--dir":
			if i+1 >= len(args) {
				return run.SplitOptions{}, fmt.Errorf("%s 需要一个值", a)
			}
			i++
			opts.Dir = args[i]
		case strings.HasPrefix(a, "--dir="):
			opts.Dir = strings.TrimPrefix(a, "--dir=")
		case strings.HasPrefix(a, "-"):
			return run.SplitOptions{}, fmt.Errorf("未知参数 %q", a)
		default:
			if opts.File != "" {
				return run.SplitOptions{}, fmt.Errorf("重复的输入文件：%q 与 %q", opts.File, a)
			}
			opts.File = a
		}
	}

	if opts.File == "" {
		return run.SplitOptions{}, fmt.Errorf("缺少待拆分的磁带文件")
	}
	return opts, nil
}

func parseCombineArgs(args []string) (run.CombineOptions, error) {
	opts := run.CombineOptions{Copy: true}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-d" || a == "--dest":
			if i+1 >= len(args) {
				return run.CombineOptions{}, fmt.Errorf("%s 需要一个值", a)
			}
			i++
			opts.DestDir = args[i]
		case strings.HasPrefix(a, "--dest="):
			opts.DestDir = strings.TrimPrefix(a, "--dest=")
		case a == "--copy":
			opts.Copy = true
		case strings.HasPrefix(a, "--copy="):
			v := strings.TrimPrefix(a, "--copy=")
			switch v {
			case "true":
				opts.Copy = true
			case "false":
				opts.Copy = false
			default:
				return run.CombineOptions{}, fmt.Errorf("--copy 只能是 true 或 false，实际是 %q", v)
			}
		case strings.HasPrefix(a, "-"):
			return run.CombineOptions{}, fmt.Errorf("未知参数 %q", a)
		default:
			opts.LibDirs = append(opts.LibDirs, a)
		}
	}

	if opts.DestDir == "" {
		return run.CombineOptions{}, fmt.Errorf("缺少 -d <dest> 目标目录")
	}
	if len(opts.LibDirs) == 0 {
		return run.CombineOptions{}, fmt.Errorf("至少需要一个待合并的库目录")
	}
	return opts, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ndmc run [path] [--release endfb71|jeff32|tendl21] [--apply[=true|false]]
  ndmc split <file> [-d dir]
  ndmc combine -d <dest> [--copy=false] <lib-dir>...

命令：
  run      下载/解包/转换发行版数据并登记库清单（默认 dry-run）
  split    把多核素裂变产额磁带拆成逐核素评价文件
  combine  把多份 HDF5 库合并成一份（先到先得去重）

使用 "ndmc <命令> --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ndmc run [path] [--release endfb71|jeff32|tendl21] [--apply[=true|false]]

参数：
  --release   数据发行版（未指定则读配置文件；最终默认 endfb71）
  --apply     执行下载/解包/转换与落盘（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  -h, --help  显示帮助
`)
}

func printSplitUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ndmc split <file> [-d dir]

参数：
  <file>      多核素拼接的 ENDF 裂变产额磁带（ASCII）
  -d, --dir   输出目录（默认输入文件所在目录）
  -h, --help  显示帮助
`)
}

func printCombineUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ndmc combine -d <dest> [--copy=false] <lib-dir>...

参数：
  -d, --dest  目标目录（必须为空或不存在）
  --copy      是否复制库文件（默认 true；false 时只登记原路径）
  <lib-dir>   按优先级排列的库目录；(type, materials) 冲突先到先得
  -h, --help  显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d skipped=%d failed=%d unmatched=%d\n",
			rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Unmatched,
		)
		if rr.Summary.Failed > 0 || rr.Summary.Unmatched > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
					continue
				}
				key := it.Nuclide
				if key == "" && len(it.Files) > 0 {
					// unmatched/config 等合成条目：用首个输入文件路径做定位锚点。
					key = it.Files[0].Src
				}
				if key == "" {
					key = "<unknown>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d skipped=%d failed=%d unmatched=%d\n",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Unmatched,
	)
}

func reportForConfigError(cwdAbs string, ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		Release:    ra.Release,
		DryRun:     !(ra.ApplySet && ra.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Nuclide:    "",
			Source:     "",
			Status:     domain.StatusFailed,
			ErrorCode:  config.Code(err),
			ErrorMsg:   err.Error(),
			Candidates: []string{},
			Files:      []domain.FileResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, "cache", "report.json"))
	}
	fmt.Fprintf(w, "out: %s\n", filepath.Join(eff.Path, "out"))
}
