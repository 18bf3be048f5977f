// Package ace 解析 ACE（A Compact ENDF）ASCII 数据表。
//
// 只实现库构建所需的最小子集：头部（ZAID/AWR/kT/日期）、NXS/JXS 指针
// 数组、XSS 主数据块，以及 ESZ 能量网格截面的取用。
package ace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/nuclide"
)

// boltzmannMeVPerK 用于把头部的 kT（MeV）换算为温度（K）。
const boltzmannMeVPerK = 8.617333262e-11

// Table 是一张解析后的 ACE 数据表。
type Table struct {
	Name    string // 头部原样的表名，如 "92235.80c"
	ZAID    int
	Suffix  string // 表名里 '.' 之后的部分，如 "80c"
	AWR     float64
	KT      float64 // MeV
	Date    string
	Comment string

	NXS [16]int
	JXS [32]int
	XSS []float64
}

// ESZ 是 ACE 的能量网格截面块（全部切片共享 Table.XSS 的底层数组）。
type ESZ struct {
	Energy     []float64 // MeV
	Total      []float64
	Absorption []float64
	Elastic    []float64
	Heating    []float64
}

// ParseTable 从 r 解析一张完整 ACE 表（含 XSS 主数据块）。
func ParseTable(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	t, err := parseHeader(sc)
	if err != nil {
		return nil, err
	}

	n := t.NXS[0]
	if n <= 0 {
		return nil, fmt.Errorf("NXS(1)=%d 非法（XSS 长度必须为正）", n)
	}
	t.XSS = make([]float64, 0, n)
	for len(t.XSS) < n && sc.Scan() {
		for _, tok := range strings.Fields(sc.Text()) {
			v, e := strconv.ParseFloat(tok, 64)
			if e != nil {
				return nil, fmt.Errorf("XSS 数据块含非数值 %q：%w", tok, e)
			}
			t.XSS = append(t.XSS, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(t.XSS) < n {
		return nil, fmt.Errorf("XSS 数据块不完整：期望 %d 个值，实际 %d", n, len(t.XSS))
	}
	t.XSS = t.XSS[:n]
	return t, nil
}

// ParseHeader 只解析头部（不读 XSS），用于低成本校验。
func ParseHeader(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	return parseHeader(sc)
}

func parseHeader(sc *bufio.Scanner) (*Table, error) {
	line, err := nextLine(sc)
	if err != nil {
		return nil, fmt.Errorf("读取 ACE 首行失败：%w", err)
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("ACE 首行字段不足：%q", line)
	}

	t := &Table{Name: fields[0]}

	base, suffix, ok := strings.Cut(fields[0], ".")
	if !ok {
		return nil, fmt.Errorf("表名 %q 缺少 '.' 后缀", fields[0])
	}
	t.Suffix = suffix
	t.ZAID, err = strconv.Atoi(base)
	if err != nil {
		return nil, fmt.Errorf("表名 %q 的 ZAID 无法解析：%w", fields[0], err)
	}

	t.AWR, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("AWR 无法解析：%w", err)
	}
	t.KT, err = strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, fmt.Errorf("kT 无法解析：%w", err)
	}
	if len(fields) >= 4 {
		t.Date = fields[3]
	}

	t.Comment, err = nextLine(sc)
	if err != nil {
		return nil, fmt.Errorf("读取 ACE 注释行失败：%w", err)
	}
	t.Comment = strings.TrimSpace(t.Comment)

	// IZ/AW 对：4 行 × 4 对。本工具不消费其内容，但必须按格式跳过。
	for i := 0; i < 4; i++ {
		if _, err := nextLine(sc); err != nil {
			return nil, fmt.Errorf("读取 IZ/AW 第 %d 行失败：%w", i+1, err)
		}
	}

	if err := readInts(sc, t.NXS[:]); err != nil {
		return nil, fmt.Errorf("读取 NXS 数组失败：%w", err)
	}
	if err := readInts(sc, t.JXS[:]); err != nil {
		return nil, fmt.Errorf("读取 JXS 数组失败：%w", err)
	}
	return t, nil
}

// Temperature 返回该表的温度（K）。
func (t *Table) Temperature() float64 {
	return t.KT / boltzmannMeVPerK
}

// Nuclide 由 ZAID 推导 GNDS 核素名。
func (t *Table) Nuclide() (domain.Nuclide, bool) {
	z, a, m, ok := nuclide.FromZAID(t.ZAID)
	if !ok {
		return "", false
	}
	return domain.ParseNuclide(nuclide.Name(z, a, m))
}

// ESZ 取出能量网格截面块（JXS(1) 定位，NXS(3) 为网格点数）。
func (t *Table) ESZ() (ESZ, error) {
	nes := t.NXS[2]
	start := t.JXS[0] - 1 // JXS 为 1 起下标
	if nes <= 0 {
		return ESZ{}, fmt.Errorf("NXS(3)=%d 非法（能量网格点数必须为正）", nes)
	}
	if start < 0 || start+5*nes > len(t.XSS) {
		return ESZ{}, fmt.Errorf("ESZ 越界：JXS(1)=%d NES=%d len(XSS)=%d", t.JXS[0], nes, len(t.XSS))
	}
	block := t.XSS[start : start+5*nes]
	return ESZ{
		Energy:     block[0*nes : 1*nes],
		Total:      block[1*nes : 2*nes],
		Absorption: block[2*nes : 3*nes],
		Elastic:    block[3*nes : 4*nes],
		Heating:    block[4*nes : 5*nes],
	}, nil
}

func nextLine(sc *bufio.Scanner) (string, error) {
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return sc.Text(), nil
}

func readInts(sc *bufio.Scanner, dst []int) error {
	got := 0
	for got < len(dst) {
		line, err := nextLine(sc)
		if err != nil {
			return err
		}
		for _, tok := range strings.Fields(line) {
			if got >= len(dst) {
				return errors.New("整数数组字段过多")
			}
			v, e := strconv.Atoi(tok)
			if e != nil {
				return fmt.Errorf("非法整数 %q：%v", tok, e)
			}
			dst[got] = v
			got++
		}
	}
	return nil
}
