package domain

// Unmatched 描述无法解析出唯一核素名的输入文件。
// 用于 report 的 unmatched 条目（含 ambiguous 候选列表）。
type Unmatched struct {
	File       TableFile
	Kind       string    // "no_match" | "ambiguous"
	Candidates []Nuclide // 仅 ambiguous 时非空（已排序）
}
