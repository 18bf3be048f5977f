package nuclide

import (
	"fmt"
	"strings"
)

// symbols 按原子序数索引元素符号（下标 0 保留给中子 n）。
var symbols = [...]string{
	"n", "H", "He", "Li", "Be", "B", "C", "N", "O", "F",
	"Ne", "Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar", "K",
	"Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu",
	"Zn", "Ga", "Ge", "As", "Se", "Br", "Kr", "Rb", "Sr", "Y",
	"Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In",
	"Sn", "Sb", "Te", "I", "Xe", "Cs", "Ba", "La", "Ce", "Pr",
	"Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm",
	"Yb", "Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au",
	"Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn", "Fr", "Ra", "Ac",
	"Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es",
	"Fm", "Md", "No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt",
	"Ds", "Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

// SymbolForZ 返回原子序数 z 对应的元素符号。
func SymbolForZ(z int) (string, bool) {
	if z < 1 || z >= len(symbols) {
		return "", false
	}
	return symbols[z], true
}

// ZForSymbol 返回元素符号对应的原子序数（大小写不敏感）。
func ZForSymbol(sym string) (int, bool) {
	sym = strings.TrimSpace(sym)
	if sym == "" {
		return 0, false
	}
	for z := 1; z < len(symbols); z++ {
		if strings.EqualFold(symbols[z], sym) {
			return z, true
		}
	}
	return 0, false
}

// Name 生成 GNDS 规范核素名：U235、Am242_m1。
// z/a 非法时返回空串（调用方应据此失败，而不是带着坏名字继续）。
func Name(z, a, m int) string {
	sym, ok := SymbolForZ(z)
	if !ok {
		return ""
	}
	if a < 1 || a > 399 {
		return ""
	}
	if m > 0 {
		return fmt.Sprintf("%s%d_m%d", sym, a, m)
	}
	return fmt.Sprintf("%s%d", sym, a)
}

// FromZAID 把 ACE 的 ZAID（ZZZAAA）拆为 (z, a, m)。
// ACE 约定：亚稳态以 A+400 表示（例如 Am-242m -> 95642）。
func FromZAID(za int) (z, a, m int, ok bool) {
	if za <= 0 {
		return 0, 0, 0, false
	}
	z = za / 1000
	a = za % 1000
	if a >= 400 {
		a -= 400
		m = 1
	}
	if _, valid := SymbolForZ(z); !valid {
		return 0, 0, 0, false
	}
	if a < 1 || a > 399 {
		return 0, 0, 0, false
	}
	return z, a, m, true
}

// ZAID 把 (z, a, m) 组合回 ACE 的 ZAID（亚稳态 A+400）。
func ZAID(z, a, m int) int {
	if m > 0 {
		a += 400
	}
	return z*1000 + a
}
