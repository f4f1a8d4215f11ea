package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kerbaras/comicdl/pkg/cache"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/logging"
	"github.com/kerbaras/comicdl/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const comicPage = `<html><body>
<div class="uk-container">
  <h1 class="uk-heading-line mt10 m10 mbn">测试漫画</h1>
  <h3 class="uk-alert-warning">单行本</h3>
  <h3 class="uk-alert-warning">单话</h3>
  <ul class="uk-switcher uk-margin">
    <li><a class="zj-container" href="./plugin.php?id=jameson_manhua&a=read&kuid=1&zjid=10">第1卷</a></li>
  </ul>
  <ul class="uk-switcher uk-margin">
    <li><a class="zj-container" href="./plugin.php?id=jameson_manhua&a=read&kuid=1&zjid=3">第10话</a></li>
    <li><a class="zj-container" href="./plugin.php?id=jameson_manhua&a=read&kuid=1&zjid=2">第2话</a></li>
    <li><a class="zj-container" href="./plugin.php?id=jameson_manhua&a=read&kuid=1&zjid=1">第1话</a></li>
  </ul>
</div>
</body></html>`

func chapterPage(name string, advertised, images int) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="uk-breadcrumb pl0"><li><a href="/">首页</a></li><li><a href="#">测试漫画</a></li>`)
	fmt.Fprintf(&b, `<li><span>%s</span></li></ul>`, name)
	fmt.Fprintf(&b, `<span class="uk-badge ml8">%dP</span><div class="uk-zjimg">`, advertised)
	for i := 0; i < images; i++ {
		fmt.Fprintf(&b, `<img src="loading.gif" data-src="https://img.example/%s/%d.jpg">`, name, i)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

type fixtureSite struct {
	mu       sync.Mutex
	fetches  map[string]int
	chapters map[string]string
	comic    string
}

func newFixtureSite() *fixtureSite {
	return &fixtureSite{
		fetches: make(map[string]int),
		comic:   comicPage,
		chapters: map[string]string{
			"10": chapterPage("第1卷", 2, 2),
			"1":  chapterPage("第1话", 3, 3),
			"2":  chapterPage("第2话", 1, 1),
			"3":  chapterPage("第10话", 4, 3), // one image missing
		},
	}
}

func (f *fixtureSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := "comic"
	if z := q.Get("zjid"); z != "" {
		key = z
	}

	f.mu.Lock()
	f.fetches[key]++
	body, ok := f.chapters[key]
	if key == "comic" {
		body, ok = f.comic, f.comic != ""
	}
	f.mu.Unlock()

	if !ok {
		http.Error(w, "gone", http.StatusInternalServerError)
		return
	}
	w.Write([]byte(body))
}

func (f *fixtureSite) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[key]
}

func (f *fixtureSite) set(key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chapters[key] = body
}

func newTestAntbyw(t *testing.T) (*Antbyw, *cache.PageCache) {
	t.Helper()
	pages, err := cache.New(t.TempDir(), 0)
	require.NoError(t, err)
	f := utils.NewFetcher(1, time.Second)
	f.Backoff = 0
	return NewAntbyw(f, pages, 2, logging.Nop()), pages
}

func TestAntbywResolveComic(t *testing.T) {
	site := newFixtureSite()
	server := httptest.NewServer(site)
	defer server.Close()

	a, _ := newTestAntbyw(t)
	comicURL := server.URL + "/plugin.php?id=jameson_manhua&c=index&a=bofang&kuid=1"

	l, err := a.ResolveComic(context.Background(), comicURL)
	require.NoError(t, err)

	assert.Equal(t, "测试漫画", l.ComicName)
	require.Len(t, l.Categories, 2)
	assert.Equal(t, "volumes", l.Categories[0].Label)
	assert.Equal(t, "chapters", l.Categories[1].Label)

	chapters := l.Categories[1].Groups
	require.Len(t, chapters, 3)
	assert.Equal(t, []string{"第1话", "第2话", "第10话"}, []string{chapters[0].Name, chapters[1].Name, chapters[2].Name})
	assert.True(t, strings.HasPrefix(chapters[0].Href, server.URL+"/plugin.php?"))
	assert.Len(t, chapters[0].Items, 3)
	assert.Equal(t, 3, chapters[0].Count)

	assert.False(t, chapters[2].Done, "count mismatch leaves the group pending")
	assert.False(t, l.Done)
	assert.Equal(t, []string{"chapters/第10话"}, l.Pending())
}

func TestAntbywResumeOnlyRefetchesPending(t *testing.T) {
	site := newFixtureSite()
	server := httptest.NewServer(site)
	defer server.Close()

	a, _ := newTestAntbyw(t)
	comicURL := server.URL + "/plugin.php?kuid=1"
	ctx := context.Background()

	first, err := a.ResolveComic(ctx, comicURL)
	require.NoError(t, err)
	require.False(t, first.Done)

	site.set("3", chapterPage("第10话", 4, 4))

	second, err := a.ResolveComic(ctx, comicURL)
	require.NoError(t, err)
	assert.True(t, second.Done)
	assert.Len(t, second.Categories[1].Groups[2].Items, 4)

	assert.Equal(t, 1, site.count("comic"))
	assert.Equal(t, 1, site.count("1"))
	assert.Equal(t, 1, site.count("2"))
	assert.Equal(t, 1, site.count("10"))
	assert.Equal(t, 2, site.count("3"), "evicted page is fetched again")

	third, err := a.ResolveComic(ctx, comicURL)
	require.NoError(t, err)
	assert.True(t, third.Done)
	assert.Equal(t, 2, site.count("3"))
	assert.Equal(t, 1, site.count("comic"))
}

func TestAntbywResolveChapter(t *testing.T) {
	site := newFixtureSite()
	server := httptest.NewServer(site)
	defer server.Close()

	a, _ := newTestAntbyw(t)
	l, err := a.Resolve(context.Background(), server.URL+"/plugin.php?kuid=1&zjid=1", data.KindCurrent)
	require.NoError(t, err)

	ch, ok := l.(*data.ChapterListing)
	require.True(t, ok)
	assert.Equal(t, "测试漫画", ch.ComicName)
	assert.Equal(t, "第1话", ch.ChapterName)
	assert.Equal(t, 3, ch.Advertised)
	assert.Equal(t, "https://img.example/第1话/0.jpg", ch.Images[0])
	assert.True(t, ch.Done)
}

func TestAntbywFetchFailureCachesNothing(t *testing.T) {
	site := newFixtureSite()
	site.comic = ""
	server := httptest.NewServer(site)
	defer server.Close()

	a, pages := newTestAntbyw(t)
	_, err := a.ResolveComic(context.Background(), server.URL+"/plugin.php?kuid=7")

	var fe *data.FetchError
	require.ErrorAs(t, err, &fe)

	_, ok, err := pages.Raw(cache.Key("antbyw", "comic", "7"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAntbywParseError(t *testing.T) {
	site := newFixtureSite()
	site.comic = "<html><body><p>maintenance</p></body></html>"
	server := httptest.NewServer(site)
	defer server.Close()

	a, _ := newTestAntbyw(t)
	_, err := a.ResolveComic(context.Background(), server.URL+"/plugin.php?kuid=1")

	var pe *data.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, selComicName, pe.Selector)
}

func TestAntbywRefetchesTruncatedCachedPage(t *testing.T) {
	site := newFixtureSite()
	server := httptest.NewServer(site)
	defer server.Close()

	a, pages := newTestAntbyw(t)
	require.NoError(t, pages.PutRaw(cache.Key("antbyw", "comic", "7"), []byte("<html><bo")))
	comicURL := server.URL + "/plugin.php?kuid=7"

	_, err := a.ResolveComic(context.Background(), comicURL)
	var pe *data.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Zero(t, site.count("comic"))

	l, err := a.ResolveComic(context.Background(), comicURL)
	require.NoError(t, err)
	assert.Equal(t, "测试漫画", l.ComicName)
	assert.Equal(t, 1, site.count("comic"), "the unreadable page is fetched again")
}

func TestAntbywErrorPageIsNotPinned(t *testing.T) {
	site := newFixtureSite()
	site.set("1", "<html><body>checking your browser</body></html>")
	server := httptest.NewServer(site)
	defer server.Close()

	a, _ := newTestAntbyw(t)
	chapterURL := server.URL + "/plugin.php?kuid=1&zjid=1"

	_, err := a.ResolveChapter(context.Background(), chapterURL)
	var pe *data.ParseError
	require.ErrorAs(t, err, &pe)

	site.set("1", chapterPage("第1话", 3, 3))
	l, err := a.ResolveChapter(context.Background(), chapterURL)
	require.NoError(t, err)
	assert.True(t, l.Done)
	assert.Equal(t, 2, site.count("1"))
}

func TestLeadingNumber(t *testing.T) {
	assert.Equal(t, 12, LeadingNumber("第12话"))
	assert.Equal(t, 3, LeadingNumber("3P"))
	assert.Equal(t, 1, LeadingNumber("番外1-2"))
	assert.Equal(t, 0, LeadingNumber("序章"))
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "volumes", CategoryLabel(" 单行本 "))
	assert.Equal(t, "extras", CategoryLabel("番外篇"))
	assert.Equal(t, "特别篇", CategoryLabel("特别篇"))
}
