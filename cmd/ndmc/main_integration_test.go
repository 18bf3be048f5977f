package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Song-Yulin/NDMC/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	// 最小输入：一张已就位的数据表（dry-run 不下载，只校验）。
	in := filepath.Join(root, "neutrons", "92235.80c")
	if err := os.MkdirAll(filepath.Dir(in), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(in, []byte(sampleACE()), 0o644); err != nil {
		t.Fatalf("写入数据表失败：%v", err)
	}

	// 本地"发布站"：只需要索引页；通过 mirror_base_url 接管官方地址。
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<a href="ENDF-B-VII.1-neutron-293.6K.tar.gz">x</a>
<a href="ENDF-B-VII.1-tsl.tar.gz">x</a>
</body></html>`))
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"mirror_base_url": %q}`, srv.URL)
	if err := os.WriteFile(filepath.Join(root, "ndmc.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/ndmc", "run", root)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	// stdout 必须是单个 JSON。
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if !rr.DryRun || rr.Summary.Processed != 1 {
		t.Fatalf("report 不符：dry_run=%v summary=%+v", rr.DryRun, rr.Summary)
	}
	// 进度/配置不应出现在 stdout。
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}

	// stderr 至少应包含最终摘要行。
	if !strings.Contains(stderr.String(), "完成：processed=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}
}

// sampleACE 与 run 包的测试样表同构（NES=3，XSS 长度 15）。
func sampleACE() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%10s %11.6f %11.5e  12/31/17\n", "92235.80c", 233.0248, 2.5301e-08)
	b.WriteString("processed test table\n")
	for i := 0; i < 4; i++ {
		b.WriteString("      0   0.000000      0   0.000000      0   0.000000      0   0.000000\n")
	}
	b.WriteString("       15        0        3        0        0        0        0        0\n")
	b.WriteString("        0        0        0        0        0        0        0        0\n")
	b.WriteString("        1        0        0        0        0        0        0        0\n")
	b.WriteString("        0        0        0        0        0        0        0        0\n")
	b.WriteString("        0        0        0        0        0        0        0        0\n")
	b.WriteString("        0        0        0        0        0        0        0        0\n")
	b.WriteString("  1.000000E-11  1.000000E-06  2.000000E+01\n")
	b.WriteString("  9.000000E+01  1.200000E+01  3.000000E+00\n")
	b.WriteString("  8.000000E+01  2.000000E+00  1.000000E-01\n")
	b.WriteString("  1.000000E+01  1.000000E+01  2.900000E+00\n")
	b.WriteString("  5.000000E+00  1.000000E+00  2.000000E-01\n")
	return b.String()
}
