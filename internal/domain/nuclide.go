package domain

import (
	"regexp"
	"strings"
)

// Nuclide 是核素的唯一主键（GNDS 规范命名，形如 U235 / Am242_m1）。
//
// 约束：要么得到唯一 Nuclide，要么失败；宁可 unmatched，也不允许写错。
type Nuclide string

var nuclideRE = regexp.MustCompile(`^[A-Z][a-z]?[0-9]{1,3}(_m[1-9])?$`)

// ParseNuclide 校验并解析规范化后的核素名。
// 输入必须已经是「元素符号+质量数（+亚稳态后缀）」的形态。
func ParseNuclide(s string) (Nuclide, bool) {
	s = strings.TrimSpace(s)
	if !nuclideRE.MatchString(s) {
		return "", false
	}
	return Nuclide(s), true
}
