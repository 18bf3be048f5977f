// Package endf 提供 ENDF-6 磁带（tape）的行级结构原语。
//
// 只关心结构，不关心物理：控制字段（MAT/MF/MT）、MEND/TEND 哨兵行、
// TPID 头。物理数据的解释属于下游消费者，不在本工具范围内。
package endf

import (
	"strconv"
	"strings"
)

// TPID 是磁带首行（下游解析器要求的空白头）。
// 内容区 66 个空格 + 控制字段（MAT=1, MF=0, MT=0, NS=0）。
var TPID = strings.Repeat(" ", contentWidth) + "   1 0  0    0"

// ENDF-6 固定列布局：内容区 1-66，MAT 67-70，MF 71-72，MT 73-75。
const (
	contentWidth = 66
	matEnd       = 70
	mfEnd        = 72
	mtEnd        = 75
)

// ControlFields 解析一行的 MAT/MF/MT 控制字段。
// 行尾空白可能被上游工具裁掉，这里先右补齐再取列。
func ControlFields(line string) (mat, mf, mt int, ok bool) {
	if len(line) < mtEnd {
		line = line + strings.Repeat(" ", mtEnd-len(line))
	}
	mat, err1 := atoiField(line[contentWidth:matEnd])
	mf, err2 := atoiField(line[matEnd:mfEnd])
	mt, err3 := atoiField(line[mfEnd:mtEnd])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return mat, mf, mt, true
}

// IsMEND 判断一行是否为材料结束哨兵（MAT=0, MF=0, MT=0）。
func IsMEND(line string) bool {
	mat, mf, mt, ok := ControlFields(line)
	return ok && mat == 0 && mf == 0 && mt == 0
}

// IsTEND 判断一行是否为磁带结束哨兵（MAT=-1）。
func IsTEND(line string) bool {
	mat, _, _, ok := ControlFields(line)
	return ok && mat == -1
}

func atoiField(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
