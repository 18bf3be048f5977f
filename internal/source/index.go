package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Song-Yulin/NDMC/internal/domain"
)

// IndexError 表示发布页索引校验失败（带 error_code）。
type IndexError struct {
	URL     string
	Missing []string
	Err     error
}

func (e *IndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：发布页 %s 不可用：%v", domain.ErrCodeFetchFailed, e.URL, e.Err)
	}
	return fmt.Sprintf("%s：发布页 %s 缺少链接：%s",
		domain.ErrCodeFetchFailed, e.URL, strings.Join(e.Missing, ", "))
}

func (e *IndexError) Unwrap() error { return e.Err }

// VerifyIndex 抓取发行版的发布页索引，确认每个归档仍在页面上有链接。
//
// 官方发布站都是目录式索引页；归档名从页面上消失通常意味着发布方
// 挪动或撤回了数据，此时宁可在下载前失败，也不要对新地址瞎猜。
func VerifyIndex(ctx context.Context, client *http.Client, r Release) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL, nil)
	if err != nil {
		return &IndexError{URL: r.BaseURL, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &IndexError{URL: r.BaseURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &IndexError{URL: r.BaseURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return &IndexError{URL: r.BaseURL, Err: err}
	}

	hrefs := map[string]struct{}{}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		// 索引页链接可能是相对或绝对形式，统一按末段文件名记录。
		href = strings.TrimSuffix(strings.TrimSpace(href), "/")
		if i := strings.LastIndexByte(href, '/'); i >= 0 {
			href = href[i+1:]
		}
		if href != "" {
			hrefs[href] = struct{}{}
		}
	})

	var missing []string
	for _, f := range r.Files {
		if _, ok := hrefs[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return &IndexError{URL: r.BaseURL, Missing: missing}
	}
	return nil
}
