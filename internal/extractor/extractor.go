package extractor

import (
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Extractor 渲染后文档的内容提取器
type Extractor struct {
	doc     *goquery.Document
	pageURL string
}

// New 解析 HTML，pageURL 为文档地址，用于解析相对链接
func New(html, pageURL string) (*Extractor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extractor: parse html")
	}
	return &Extractor{doc: doc, pageURL: pageURL}, nil
}

// Links 按文档顺序返回所有链接的绝对地址
// 保留重复项；没有 href 或无法解析的链接会被忽略；<base href> 优先于文档地址
func (e *Extractor) Links() []string {
	base, err := url.Parse(e.pageURL)
	if err != nil {
		base = &url.URL{}
	}
	if href, ok := e.doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	var links []string
	e.doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		links = append(links, u.String())
	})
	return links
}

// HasPostForm 判断 selector 是否匹配到 method 为 POST 的表单
func (e *Extractor) HasPostForm(selector string) bool {
	found := false
	e.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "form" && strings.EqualFold(s.AttrOr("method", ""), "post") {
			found = true
			return false
		}
		return true
	})
	return found
}

// Snapshot 将 body 转换为 Markdown，最多保留 limit 字节（limit <= 0 表示不截断）
// 仅用于诊断日志
func (e *Extractor) Snapshot(limit int) (string, error) {
	body, err := e.doc.Find("body").Html()
	if err != nil {
		return "", eris.Wrap(err, "extractor: read body")
	}

	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(body)
	if err != nil {
		return "", eris.Wrap(err, "extractor: convert to markdown")
	}
	text = strings.TrimSpace(text)
	if limit > 0 && len(text) > limit {
		text = text[:limit] + "…"
	}
	return text, nil
}
