package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kerbaras/comicdl/pkg/cache"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/logging"
	"github.com/kerbaras/comicdl/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMangaDexServer(t *testing.T, aggregateCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/manga/m1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"m1","attributes":{"title":{"en":"Test Title"}}}}`))
	})
	mux.HandleFunc("/manga/m1/aggregate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(aggregateCalls, 1)
		assert.Equal(t, "en", r.URL.Query().Get("translatedLanguage[]"))
		w.Write([]byte(`{"result":"ok","volumes":{
			"2":{"volume":"2","chapters":{"3":{"chapter":"3","id":"c3","others":[]}}},
			"1":{"volume":"1","chapters":{
				"2":{"chapter":"2","id":"c2","others":["c2b"]},
				"1":{"chapter":"1","id":"c1","others":[]}
			}}
		}}`))
	})
	mux.HandleFunc("/at-home/server/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"ok","baseUrl":"https://cdn.example","chapter":{"hash":"h","data":["1.png","2.png"]}}`))
	})
	mux.HandleFunc("/chapter/c1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"c1","attributes":{"volume":"1","chapter":"1"},"relationships":[{"id":"m1","type":"manga"}]}}`))
	})
	return httptest.NewServer(mux)
}

func newTestMangaDex(t *testing.T, apiURL string) *MangaDex {
	t.Helper()
	pages, err := cache.New(t.TempDir(), 0)
	require.NoError(t, err)
	f := utils.NewFetcher(1, time.Second)
	f.Backoff = 0
	return NewMangaDex(apiURL, f, pages, 2, logging.Nop())
}

func TestMangaDexResolveTitle(t *testing.T) {
	var calls int32
	server := newMangaDexServer(t, &calls)
	defer server.Close()

	md := newTestMangaDex(t, server.URL)
	l, err := md.Resolve(context.Background(), "https://mangadex.org/title/m1/test-title", data.KindChapters)
	require.NoError(t, err)

	comic, ok := l.(*data.ComicListing)
	require.True(t, ok)
	assert.Equal(t, "Test Title", comic.ComicName)
	assert.True(t, comic.Done)
	require.Len(t, comic.Categories, 1)

	var names []string
	for _, g := range comic.Categories[0].Groups {
		names = append(names, g.Name)
		assert.Len(t, g.Items, 2)
	}
	assert.Equal(t, []string{
		"volume1_chapter1",
		"volume1_chapter2",
		"volume1_chapter2_other_0",
		"volume2_chapter3",
	}, names)
	assert.Equal(t, "https://cdn.example/data/h/1.png", comic.Categories[0].Groups[0].Items[0].Src)

	_, err = md.Resolve(context.Background(), "https://mangadex.org/title/m1/test-title", data.KindChapters)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMangaDexResolveChapter(t *testing.T) {
	var calls int32
	server := newMangaDexServer(t, &calls)
	defer server.Close()

	md := newTestMangaDex(t, server.URL)
	l, err := md.Resolve(context.Background(), "https://mangadex.org/chapter/c1/1", data.KindCurrent)
	require.NoError(t, err)

	ch, ok := l.(*data.ChapterListing)
	require.True(t, ok)
	assert.Equal(t, "volume1_chapter1", ch.ChapterName)
	assert.Equal(t, "Test Title", ch.ComicName)
	assert.Len(t, ch.Images, 2)
	assert.True(t, ch.Done)
}

func TestPathID(t *testing.T) {
	id, err := pathID("https://mangadex.org/title/abc/slug", "title")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = pathID("https://mangadex.org/title/abc", "chapter")
	assert.Error(t, err)
}

func TestRegistryRoute(t *testing.T) {
	nop := logging.Nop()
	f := utils.NewFetcher(1, time.Second)
	pages, err := cache.New(t.TempDir(), 0)
	require.NoError(t, err)

	reg := NewRegistry([]string{"antbyw.com", "mangadex.org"},
		NewAntbyw(f, pages, 5, nop), NewMangaDex("", f, pages, 5, nop))

	r, err := reg.Route("https://www.antbyw.com/plugin.php?kuid=1")
	require.NoError(t, err)
	assert.Equal(t, "antbyw", r.Name())

	r, err = reg.Route("https://mangadex.org/title/x")
	require.NoError(t, err)
	assert.Equal(t, "mangadex", r.Name())

	_, err = reg.Route("https://www.example.com/comic")
	assert.ErrorIs(t, err, data.ErrUnsupportedSource)

	_, err = reg.Route("ftp://www.antbyw.com/x")
	assert.ErrorIs(t, err, data.ErrUnsupportedSource)

	_, err = reg.Route("not a url")
	assert.ErrorIs(t, err, data.ErrUnsupportedSource)

	open := NewRegistry(nil, NewAntbyw(f, pages, 5, nop))
	_, err = open.Route("https://antbyw.net/plugin.php?kuid=1")
	assert.NoError(t, err, "no allow-list routes by label alone")
}
