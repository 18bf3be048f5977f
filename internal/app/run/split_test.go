package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Song-Yulin/NDMC/internal/domain"
	"github.com/Song-Yulin/NDMC/internal/endf"
)

func endfLine(content string, mat, mf, mt int) string {
	return fmt.Sprintf("%-66s%4d%2d%3d", content, mat, mf, mt)
}

// nfyMaterial 生成一条最小裂变产额评价：5 行头 + 第 6 行携带核素标识 + MEND。
func nfyMaterial(idField string, mat int) []string {
	ls := make([]string, 0, 7)
	for i := 0; i < 5; i++ {
		ls = append(ls, endfLine(" 0.000000+0 0.000000+0", mat, 8, 454))
	}
	ls = append(ls, endfLine(idField+" JEFF-3.3", mat, 8, 454))
	ls = append(ls, endfLine("", 0, 0, 0))
	return ls
}

func writeTape(t *testing.T, path string, withTPID bool, chunks ...[]string) {
	t.Helper()
	var b strings.Builder
	if withTPID {
		b.WriteString(endf.TPID)
		b.WriteByte('\n')
	}
	for _, c := range chunks {
		for _, l := range c {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	b.WriteString(endfLine("", -1, 0, 0))
	b.WriteByte('\n')
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("写入磁带失败：%v", err)
	}
}

func TestSplit(t *testing.T) {
	root := t.TempDir()
	tape := filepath.Join(root, "JEFF33-nfy.asc")
	writeTape(t, tape, true,
		nfyMaterial(" 92-U -235 ", 9228),
		nfyMaterial(" 95-Am-241 ", 9543),
	)

	outDir := filepath.Join(root, "nfy")
	rr := Split(SplitOptions{File: tape, Dir: outDir})

	if rr.Summary.Processed != 2 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符：%+v items=%+v", rr.Summary, rr.Items)
	}

	for _, name := range []string{"nfy-92U235.endf", "nfy-95Am241.endf"} {
		b, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("应产出 %s：%v", name, err)
		}
		// 每个产物以 TPID 开头，且保留 MEND 行。
		if !strings.HasPrefix(string(b), endf.TPID+"\n") {
			t.Fatalf("%s 应以 TPID 开头", name)
		}
		if !strings.Contains(string(b), endfLine("", 0, 0, 0)) {
			t.Fatalf("%s 应保留 MEND 行", name)
		}
	}

	// 磁带自身的 TEND 不进入任何产物。
	b, _ := os.ReadFile(filepath.Join(outDir, "nfy-95Am241.endf"))
	if strings.Contains(string(b), endfLine("", -1, 0, 0)) {
		t.Fatal("TEND 不应出现在产物里")
	}
}

func TestSplit_NoTapeHeader(t *testing.T) {
	root := t.TempDir()
	tape := filepath.Join(root, "tape.asc")
	writeTape(t, tape, false, nfyMaterial(" 92-U -238 ", 9237))

	rr := Split(SplitOptions{File: tape, Dir: root})
	if rr.Summary.Processed != 1 {
		t.Fatalf("无头磁带也应正常拆分：%+v", rr.Items)
	}
	if _, err := os.Stat(filepath.Join(root, "nfy-92U238.endf")); err != nil {
		t.Fatalf("应产出 nfy-92U238.endf：%v", err)
	}
}

func TestSplit_BadRecordIsolated(t *testing.T) {
	root := t.TempDir()
	tape := filepath.Join(root, "tape.asc")
	// 第一条记录只有 3 行（不足标识行号），第二条正常。
	short := []string{
		endfLine(" 0.000000+0", 9228, 8, 454),
		endfLine(" 0.000000+0", 9228, 8, 454),
		endfLine("", 0, 0, 0),
	}
	writeTape(t, tape, true, short, nfyMaterial(" 94-Pu-239 ", 9437))

	rr := Split(SplitOptions{File: tape, Dir: root})
	if rr.Summary.Failed != 1 || rr.Summary.Processed != 1 {
		t.Fatalf("坏记录应只影响自己：%+v items=%+v", rr.Summary, rr.Items)
	}
	var failed domain.ItemResult
	for _, it := range rr.Items {
		if it.Status == domain.StatusFailed {
			failed = it
		}
	}
	if failed.ErrorCode != domain.ErrCodeParseFailed || failed.Files[0].Src != "tape.asc#1" {
		t.Fatalf("失败条目不符：%+v", failed)
	}
	if _, err := os.Stat(filepath.Join(root, "nfy-94Pu239.endf")); err != nil {
		t.Fatalf("正常记录仍应产出：%v", err)
	}
}

func TestSplit_DuplicateTargetConflicts(t *testing.T) {
	root := t.TempDir()
	tape := filepath.Join(root, "tape.asc")
	writeTape(t, tape, true, nfyMaterial(" 92-U -235 ", 9228))

	if rr := Split(SplitOptions{File: tape, Dir: root}); rr.Summary.Processed != 1 {
		t.Fatalf("首次拆分应成功：%+v", rr.Items)
	}
	rr := Split(SplitOptions{File: tape, Dir: root})
	if rr.Summary.Failed != 1 {
		t.Fatalf("重复拆分应冲突：%+v", rr.Items)
	}
	if rr.Items[0].ErrorCode != domain.ErrCodeTargetConflict {
		t.Fatalf("error_code 应为 target_conflict：%+v", rr.Items[0])
	}
}

func TestSplit_MissingInput(t *testing.T) {
	rr := Split(SplitOptions{File: filepath.Join(t.TempDir(), "nope.asc")})
	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeIOFailed {
		t.Fatalf("缺失输入应为 io_failed：%+v", rr.Items)
	}
}
