package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	r, ok := Lookup("endfb71")
	if !ok {
		t.Fatal("endfb71 应在目录里")
	}
	if r.Source != "nndc" {
		t.Fatalf("Source=%q，期望 nndc", r.Source)
	}
	if len(r.Files) != 2 {
		t.Fatalf("期望 2 个归档，实际 %d", len(r.Files))
	}
	for _, f := range r.Files {
		if !strings.HasPrefix(f.URL, r.BaseURL) || !strings.HasSuffix(f.URL, f.Name) {
			t.Fatalf("URL 未按 BaseURL+Name 拼装：%q", f.URL)
		}
		if f.MD5 == "" {
			t.Fatalf("NNDC 归档应带公布的 MD5：%+v", f)
		}
	}
	if len(r.Patches) != 2 {
		t.Fatalf("期望 2 条勘误，实际 %d", len(r.Patches))
	}

	if _, ok := Lookup("endfb99"); ok {
		t.Fatal("未知发行版不应命中")
	}
}

func TestLookup_JEFF32CoversAllTemperatures(t *testing.T) {
	r, ok := Lookup("jeff32")
	if !ok {
		t.Fatal("jeff32 应在目录里")
	}
	// 11 个温度归档 + TSLs。
	if len(r.Files) != 12 {
		t.Fatalf("期望 12 个归档，实际 %d", len(r.Files))
	}
	has := func(name string) bool {
		for _, f := range r.Files {
			if f.Name == name {
				return true
			}
		}
		return false
	}
	if !has("JEFF32-ACE-293K.tar.gz") || !has("JEFF32-ACE-1800K.tar.gz") || !has("TSLs.tar.gz") {
		t.Fatalf("归档清单不完整：%+v", r.Files)
	}
	if got := r.ExtractSubdir("JEFF32-ACE-293K.tar.gz"); got != "ACEs_293K" {
		t.Fatalf("293K 归档应解到 ACEs_293K，实际 %q", got)
	}
	if got := r.ExtractSubdir("TSLs.tar.gz"); got != "" {
		t.Fatalf("TSLs 应解到根，实际 %q", got)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 3 {
		t.Fatalf("期望 3 个发行版，实际 %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("发行版名应升序：%v", names)
		}
	}
}

func TestWithMirror(t *testing.T) {
	r, _ := Lookup("tendl21")
	m, err := r.WithMirror("https://mirror.example.org/nds")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if m.Files[0].URL != "https://mirror.example.org/nds/tendl21c.tar.bz2" {
		t.Fatalf("镜像改写不符：%q", m.Files[0].URL)
	}
	// 原目录项不受影响。
	orig, _ := Lookup("tendl21")
	if !strings.HasPrefix(orig.Files[0].URL, "https://tendl.web.psi.ch/") {
		t.Fatalf("目录项被就地修改：%q", orig.Files[0].URL)
	}

	if _, err := r.WithMirror("ftp://mirror"); err == nil {
		t.Fatal("非 http/https 镜像应报错")
	}
}

func TestVerifyIndex(t *testing.T) {
	const page = `<html><body><table>
<tr><td><a href="tendl21c.tar.bz2">tendl21c.tar.bz2</a></td></tr>
<tr><td><a href="/tendl_2021/tar_files/other.tar.bz2">other</a></td></tr>
</table></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	r, _ := Lookup("tendl21")
	r, err := r.WithMirror(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := VerifyIndex(context.Background(), srv.Client(), r); err != nil {
		t.Fatalf("索引校验应通过：%v", err)
	}
}

func TestVerifyIndex_MissingLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="unrelated.zip">x</a></body></html>`))
	}))
	defer srv.Close()

	r, _ := Lookup("tendl21")
	r, _ = r.WithMirror(srv.URL)
	err := VerifyIndex(context.Background(), srv.Client(), r)
	var ie *IndexError
	if !errors.As(err, &ie) {
		t.Fatalf("期望 IndexError，实际：%v", err)
	}
	if len(ie.Missing) != 1 || ie.Missing[0] != "tendl21c.tar.bz2" {
		t.Fatalf("Missing=%v", ie.Missing)
	}
}

func TestVerifyIndex_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	r, _ := Lookup("endfb71")
	r, _ = r.WithMirror(srv.URL)
	if err := VerifyIndex(context.Background(), srv.Client(), r); err == nil {
		t.Fatal("非 200 索引页应报错")
	}
}
