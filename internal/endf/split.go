package endf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// IDLine 是核素标识在每条记录内的固定行号（1 起）。
	IDLine = 6
	// idWidth 是标识所在的固定列宽（1-11 列，形如 " 92-U -235 "）。
	idWidth = 11
)

// Record 是从磁带上拆出的一条评价（单核素的裂变产额数据）。
//
// Data 已含 TPID 头（下游解析器要求磁带以 TPID 开始）。
// ID 解析失败时为空且 Err 非 nil；拆分流程不中断（单条失败不影响其他）。
type Record struct {
	Index int // 记录序号（从 1 开始）
	ID    string
	Lines int // 不含 TPID 头的原始行数
	Data  []byte
	Err   error
}

var idRE = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// SplitTape 把一条多核素拼接磁带按 MEND 哨兵拆成逐条记录，依次回调 emit。
//
// 约定（与上游数据发布格式一致）：
// - 记录边界：MEND 行（MAT=0，含在记录内，与原始发布保持逐字一致）
// - TEND 行（MAT=-1）终止磁带，本身被丢弃
// - 每条记录的标识取第 IDLine 行的 1-11 列，去掉空格与横线（如 92U235）
// - 末尾的空白残段直接忽略
//
// emit 返回非 nil 错误时拆分立即终止（用于写盘失败等不可继续的情况）。
func SplitTape(r io.Reader, emit func(Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var (
		lines []string
		index int
	)

	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		if blankChunk(lines) {
			lines = lines[:0]
			return nil
		}
		index++
		rec := buildRecord(index, lines)
		lines = lines[:0]
		return emit(rec)
	}

	for sc.Scan() {
		line := sc.Text()
		if IsTEND(line) {
			// 磁带结束：之前累积的行（若有）仍按一条记录处理。
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		lines = append(lines, line)
		if IsMEND(line) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}

func buildRecord(index int, lines []string) Record {
	rec := Record{Index: index, Lines: len(lines)}

	var b strings.Builder
	b.WriteString(TPID)
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	rec.Data = []byte(b.String())

	if len(lines) < IDLine {
		rec.Err = fmt.Errorf("记录只有 %d 行，不足以读取第 %d 行的核素标识", len(lines), IDLine)
		return rec
	}
	raw := lines[IDLine-1]
	if len(raw) > idWidth {
		raw = raw[:idWidth]
	}
	id := strings.NewReplacer(" ", "", "-", "").Replace(raw)
	if id == "" || !idRE.MatchString(id) {
		rec.Err = fmt.Errorf("第 %d 行 1-%d 列无法解析出核素标识：%q", IDLine, idWidth, raw)
		return rec
	}
	rec.ID = id
	return rec
}

func blankChunk(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// StripTPID 去掉磁带开头的 TPID 头（若有），返回是否去掉。
// 拆分前必须归一化：TPID 属于整条磁带而非第一条记录，留着会让
// 第一条记录的标识行号整体偏移一行。
// 判据与 RepairTPID 对偶：首行 MF=0（或控制字段不可解析）即视为磁带头。
func StripTPID(data []byte) ([]byte, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return data, false
	}
	mat, mf, _, ok := ControlFields(string(data[:i]))
	if ok && mat > 0 && mf > 0 {
		return data, false
	}
	return data[i+1:], true
}

// RepairTPID 检查磁带是否缺失 TPID 头，缺失则补上。
// 判据：首行控制字段 MAT>0 且 MF>0（说明第一行已经是材料数据而非磁带头；
// TPID 头本身 MAT=1 但 MF=0，不会被误判）。
func RepairTPID(data []byte) ([]byte, bool) {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	mat, mf, _, ok := ControlFields(string(line))
	if !ok || mat <= 0 || mf <= 0 {
		return data, false
	}
	out := make([]byte, 0, len(data)+len(TPID)+1)
	out = append(out, TPID...)
	out = append(out, '\n')
	out = append(out, data...)
	return out, true
}
