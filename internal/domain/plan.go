package domain

// Patch 描述一次对 ACE 源文件的文本修正（只替换第一处出现）。
// 来源于各发行版公开勘误（例如 S(a,b) 表中错误的 ZAID 指派），
// 在解包后直接打到磁盘上。
type Patch struct {
	File string // 仅按 base name 匹配
	Old  string
	New  string
}

// ItemPlan 是对某个核素的最小执行计划（不做任何写入）。
type ItemPlan struct {
	Nuclide Nuclide
	Release string

	// SrcAbs 按 RelPath 字典序排序（计划阶段不读文件内容；
	// 真正的温度次序在转换阶段解析头部后归位）。
	SrcAbs []string

	DstAbs      string // out/neutron/<Nuclide>.h5 的绝对路径
	NeedConvert bool
}
