package domain

// WorkItem 是按核素聚合后的工作单元（同一核素可能覆盖多个温度的数据表）。
// 为了数据局部性，WorkItem 只保存文件下标（指向 []TableFile），避免复制大结构体。
type WorkItem struct {
	Nuclide Nuclide
	FileIdx []int
}
