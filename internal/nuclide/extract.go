package nuclide

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/domain"
)

// 文件名中允许的核素标识变体：
// - 符号形：U235 / u-235 / Am242m1 / U235m（TENDL、JEFF 的 ACE 命名）
// - ZAID 形：92235 / 92235.80c（MCNP 风格的 ACE 命名）
// - ENDF 形：n-092_U_235 / n-095_Am_242m1（评价文件命名）
//
// 注意：候选必须通过元素表校验，避免把 "ACEs_293K" 这类目录噪音当成核素。
var (
	symbolRE = regexp.MustCompile(`(?i)\b([a-z]{1,2})[-_]?([0-9]{1,3})(m[1-9]?)?\b`)
	zaidRE   = regexp.MustCompile(`\b([0-9]{4,6})(?:\.[0-9]{2,3}[a-z]{1,2})?\b`)
	endfRE   = regexp.MustCompile(`(?i)\b[0-9]{3}_([a-z]{1,2})_([0-9]{3})(m[1-9])?\b`)
)

type UnmatchedError struct {
	// Kind: "no_match" 或 "ambiguous"
	Kind string
	// Candidates 仅在 ambiguous 时返回（已排序，保证稳定）。
	Candidates []domain.Nuclide
}

func (e *UnmatchedError) Error() string {
	switch e.Kind {
	case "no_match":
		return "无法从文件名解析出核素标识"
	case "ambiguous":
		parts := make([]string, 0, len(e.Candidates))
		for _, c := range e.Candidates {
			parts = append(parts, string(c))
		}
		return "解析到多个不同核素（ambiguous）：" + strings.Join(parts, ", ")
	default:
		return "unmatched"
	}
}

// Extract 从 TableFile 的文件名中提取唯一核素名。
// 若提取失败，返回 *UnmatchedError（no_match / ambiguous）。
func Extract(f domain.TableFile) (domain.Nuclide, error) {
	m := map[domain.Nuclide]struct{}{}
	addCandidates(m, f.Base)

	if len(m) == 0 {
		return "", &UnmatchedError{Kind: "no_match"}
	}
	if len(m) > 1 {
		cands := make([]domain.Nuclide, 0, len(m))
		for c := range m {
			cands = append(cands, c)
		}
		sort.Slice(cands, func(i, j int) bool { return string(cands[i]) < string(cands[j]) })
		return "", &UnmatchedError{Kind: "ambiguous", Candidates: cands}
	}
	for c := range m {
		return c, nil
	}
	return "", &UnmatchedError{Kind: "no_match"}
}

func addCandidates(dst map[domain.Nuclide]struct{}, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}

	// ENDF 形优先：它的符号段/数字段同时会被 symbolRE 部分命中，
	// 先整体识别可避免把同一个标识拆成两个候选。
	if em := endfRE.FindAllStringSubmatch(s, -1); len(em) > 0 {
		for _, g := range em {
			add(dst, g[1], g[2], g[3])
		}
		return
	}

	// 下划线在正则里是 \w，\b 不会在它两侧生效；
	// 把它换成空格，让 "ENDF_U235" 这类名字的边界可被命中。
	s = strings.ReplaceAll(s, "_", " ")

	for _, g := range symbolRE.FindAllStringSubmatch(s, -1) {
		add(dst, g[1], g[2], g[3])
	}

	for _, g := range zaidRE.FindAllStringSubmatch(s, -1) {
		za, err := strconv.Atoi(g[1])
		if err != nil {
			continue
		}
		z, a, m, ok := FromZAID(za)
		if !ok {
			continue
		}
		if n, valid := domain.ParseNuclide(Name(z, a, m)); valid {
			dst[n] = struct{}{}
		}
	}
}

func add(dst map[domain.Nuclide]struct{}, sym, mass, meta string) {
	z, ok := ZForSymbol(sym)
	if !ok {
		return
	}
	a, err := strconv.Atoi(mass)
	if err != nil {
		return
	}
	m := 0
	if meta != "" {
		// "m" 等价于 "m1"（TENDL 的亚稳态命名不带序号）。
		m = 1
		if len(meta) > 1 {
			if v, e := strconv.Atoi(meta[1:]); e == nil {
				m = v
			}
		}
	}
	if n, valid := domain.ParseNuclide(Name(z, a, m)); valid {
		dst[n] = struct{}{}
	}
}
