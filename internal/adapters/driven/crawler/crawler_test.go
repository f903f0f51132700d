package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

const page = `<!doctype html>
<html><head><title>Ignored</title><style>main{color:red}</style></head>
<body>
<nav>Home About</nav>
<main>
  <h1>Launch   day</h1>
  <p class="lead intro">We shipped <b>it</b>.</p>
  <script>track()</script>
  <div id="extra">Contact us</div>
</main>
<footer>Copyright</footer>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news/launch", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newCrawler(t *testing.T, base, selector string) *Crawler {
	t.Helper()
	c, err := New(domain.CrawlerSettings{BaseURL: base, ContentSelector: selector, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestMainContent(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name     string
		selector string
		link     string
		want     string
	}{
		{name: "main element", selector: "main", link: "/news/launch", want: "Launch day We shipped it . Contact us"},
		{name: "by id", selector: "#extra", link: "/news/launch", want: "Contact us"},
		{name: "by class", selector: ".intro", link: "/news/launch", want: "We shipped it ."},
		{name: "absolute link", selector: "footer", link: srv.URL + "/news/launch", want: "Copyright"},
		{name: "no match", selector: "article", link: "/news/launch", want: ""},
		{name: "not found", selector: "main", link: "/gone", want: ""},
		{name: "stage parameter", selector: "#extra", link: "/news/launch?stage=Live", want: "Contact us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCrawler(t, srv.URL, tt.selector)
			rec := &domain.Record{ID: 1, ClassName: "Page", Link: tt.link}
			assert.Equal(t, tt.want, c.MainContent(context.Background(), rec))
		})
	}
}

func TestMainContent_Failures(t *testing.T) {
	srv := newServer(t)

	t.Run("no link", func(t *testing.T) {
		c := newCrawler(t, srv.URL, "main")
		assert.Empty(t, c.MainContent(context.Background(), &domain.Record{ID: 1}))
	})

	t.Run("relative link without base", func(t *testing.T) {
		c := newCrawler(t, "", "main")
		assert.Empty(t, c.MainContent(context.Background(), &domain.Record{ID: 1, Link: "/news/launch"}))
	})

	t.Run("cancelled", func(t *testing.T) {
		c := newCrawler(t, srv.URL, "main")
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Empty(t, c.MainContent(ctx, &domain.Record{ID: 1, Link: "/slow"}))
	})
}

func TestMainContent_CachesPages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) > 1 && r.URL.Path == "/flaky" {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	c := newCrawler(t, srv.URL, "#extra")

	rec := &domain.Record{ID: 1, ClassName: "Page", Link: "/news/launch"}
	assert.Equal(t, "Contact us", c.MainContent(context.Background(), rec))
	assert.Equal(t, "Contact us", c.MainContent(context.Background(), rec))
	assert.Equal(t, int32(1), hits.Load())

	other := &domain.Record{ID: 2, ClassName: "Page", Link: "/flaky"}
	assert.Empty(t, c.MainContent(context.Background(), other))
	assert.Empty(t, c.MainContent(context.Background(), other), "failures are not cached")
	assert.Equal(t, int32(3), hits.Load())
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(domain.CrawlerSettings{BaseURL: "http://[::1"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestParseSelector(t *testing.T) {
	assert.Equal(t, selector{tag: "main"}, parseSelector(""))
	assert.Equal(t, selector{tag: "article"}, parseSelector(" ARTICLE "))
	assert.Equal(t, selector{id: "content"}, parseSelector("#content"))
	assert.Equal(t, selector{class: "body"}, parseSelector(".body"))
	assert.Equal(t, "#content", parseSelector("#content").String())
}

func TestFind_DocumentOrder(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div class="x">first</div><div class="x">second</div>`))
	require.NoError(t, err)

	node := find(doc, parseSelector(".x"))
	require.NotNil(t, node)
	var b strings.Builder
	collectText(node, &b)
	assert.Equal(t, "first", strings.TrimSpace(b.String()))
}
