package ace

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ApplyPatch 对表内容做一次文本替换（只替换第一处出现）。
// 用于各发行版公开勘误（例如 S(a,b) 表中错误的 ZAID 指派）。
// 未命中不视为错误：勘误可能已经在上游数据里修掉了。
func ApplyPatch(data []byte, old, repl string) ([]byte, bool) {
	i := bytes.Index(data, []byte(old))
	if i < 0 {
		return data, false
	}
	out := make([]byte, 0, len(data)-len(old)+len(repl))
	out = append(out, data[:i]...)
	out = append(out, repl...)
	out = append(out, data[i+len(old):]...)
	return out, true
}

// EnsureMetastableZAID 保证亚稳态表的 ZAID 遵守 A+400 约定。
//
// 某些发行版的亚稳态 ACE 文件头里写的是基态 ZAID（如 Pm-148m 写成
// 61148）。此处按解析后的 ZAID 做算术修正（A<300 视为漏标，+400），
// 并在文件头原位替换，保持列宽不变。
func EnsureMetastableZAID(data []byte) ([]byte, bool, error) {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return nil, false, fmt.Errorf("ACE 首行为空，无法读取 ZAID")
	}
	base, suffix, ok := strings.Cut(fields[0], ".")
	if !ok {
		return nil, false, fmt.Errorf("表名 %q 缺少 '.' 后缀", fields[0])
	}
	za, err := strconv.Atoi(base)
	if err != nil {
		return nil, false, fmt.Errorf("表名 %q 的 ZAID 无法解析：%w", fields[0], err)
	}

	if za%1000 >= 300 {
		// 已经带亚稳态标记（或质量数异常大），不改。
		return data, false, nil
	}

	fixed := strconv.Itoa(za + 400)
	if len(fixed) != len(base) {
		return nil, false, fmt.Errorf("修正后的 ZAID %s 与原宽度不一致（%s）", fixed, base)
	}
	out, replaced := ApplyPatch(data, base+"."+suffix, fixed+"."+suffix)
	if !replaced {
		return nil, false, fmt.Errorf("未能在文件头定位表名 %q", fields[0])
	}
	return out, true, nil
}
