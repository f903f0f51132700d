package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/html"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure Crawler implements the interface.
var _ driven.Crawler = (*Crawler)(nil)

// MaxPageBytes caps how much of a page is read.
const MaxPageBytes = 5 << 20

// Extracted text is kept per URL for CacheTTL, so a record written to
// several indexes or retried within a run is fetched once.
const (
	CacheSize = 256
	CacheTTL  = time.Minute
)

// Crawler fetches rendered pages. Failures never abort indexing: they are
// logged and yield empty content.
type Crawler struct {
	client   *http.Client
	base     *url.URL
	selector selector
	pages    *expirable.LRU[string, string]
}

// New creates a crawler. Relative record links are resolved against
// settings.BaseURL.
func New(settings domain.CrawlerSettings) (*Crawler, error) {
	c := &Crawler{
		client:   &http.Client{Timeout: settings.Timeout},
		selector: parseSelector(settings.ContentSelector),
		pages:    expirable.NewLRU[string, string](CacheSize, nil, CacheTTL),
	}
	if settings.BaseURL != "" {
		base, err := url.Parse(settings.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: base url: %v", domain.ErrConfiguration, err)
		}
		c.base = base
	}
	return c, nil
}

// MainContent returns the plain text of the record's main content element.
func (c *Crawler) MainContent(ctx context.Context, rec *domain.Record) string {
	target, err := c.resolve(rec.Link)
	if err != nil {
		logger.Warn("crawl %s %d: %v", rec.ClassName, rec.ID, err)
		return ""
	}
	if text, ok := c.pages.Get(target); ok {
		return text
	}
	text, err := c.fetch(ctx, target)
	if err != nil {
		logger.Warn("crawl %s %d at %s: %v", rec.ClassName, rec.ID, target, err)
		return ""
	}
	c.pages.Add(target, text)
	return text
}

func (c *Crawler) resolve(link string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("record has no link")
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	if !u.IsAbs() {
		if c.base == nil {
			return "", fmt.Errorf("relative link %q and no base url configured", link)
		}
		u = c.base.ResolveReference(u)
	}
	return u.String(), nil
}

func (c *Crawler) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, MaxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	node := find(doc, c.selector)
	if node == nil {
		logger.Debug("crawl %s: no element matches %s", target, c.selector)
		return "", nil
	}
	var b strings.Builder
	collectText(node, &b)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

// selector is a single simple CSS selector: tag, #id or .class.
type selector struct {
	tag, id, class string
}

func parseSelector(s string) selector {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return selector{tag: domain.DefaultContentSelector}
	case strings.HasPrefix(s, "#"):
		return selector{id: s[1:]}
	case strings.HasPrefix(s, "."):
		return selector{class: s[1:]}
	}
	return selector{tag: strings.ToLower(s)}
}

func (s selector) String() string {
	switch {
	case s.id != "":
		return "#" + s.id
	case s.class != "":
		return "." + s.class
	}
	return s.tag
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" {
		return n.Data == s.tag
	}
	for _, a := range n.Attr {
		switch {
		case s.id != "" && a.Key == "id" && a.Val == s.id:
			return true
		case s.class != "" && a.Key == "class" && containsWord(a.Val, s.class):
			return true
		}
	}
	return false
}

func containsWord(list, word string) bool {
	for _, f := range strings.Fields(list) {
		if f == word {
			return true
		}
	}
	return false
}

// find returns the first node in document order matching sel.
func find(n *html.Node, sel selector) *html.Node {
	if sel.matches(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := find(child, sel); found != nil {
			return found
		}
	}
	return nil
}

// collectText appends the text below n, skipping non-content elements.
func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "svg":
			return
		}
		b.WriteByte(' ')
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
	if n.Type == html.ElementNode {
		b.WriteByte(' ')
	}
}
