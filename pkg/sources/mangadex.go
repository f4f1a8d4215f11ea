package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kerbaras/comicdl/pkg/cache"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/utils"
)

const (
	MangaDexAPI  = "https://api.mangadex.org"
	MangaDexSite = "https://mangadex.org"
)

type Manga struct {
	ID         string `json:"id"`
	Attributes struct {
		Title       map[string]string `json:"title"`
		Description map[string]string `json:"description"`
	} `json:"attributes"`
}

func (m *Manga) Name() string {
	if t := m.Attributes.Title["en"]; t != "" {
		return t
	}
	for _, t := range m.Attributes.Title {
		return t
	}
	return m.ID
}

type Chapter struct {
	ID         string `json:"id"`
	Attributes struct {
		Title    string `json:"title"`
		Language string `json:"translatedLanguage"`
		Volume   string `json:"volume"`
		Number   string `json:"chapter"`
	} `json:"attributes"`
	Relationships []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"relationships"`
}

func (c *Chapter) MangaID() string {
	for _, r := range c.Relationships {
		if r.Type == "manga" {
			return r.ID
		}
	}
	return ""
}

type aggregate struct {
	Result  string `json:"result"`
	Volumes map[string]struct {
		Volume   string `json:"volume"`
		Chapters map[string]struct {
			Chapter string   `json:"chapter"`
			ID      string   `json:"id"`
			Others  []string `json:"others"`
		} `json:"chapters"`
	} `json:"volumes"`
}

type atHome struct {
	BaseURL string `json:"baseUrl"`
	Chapter struct {
		Hash string   `json:"hash"`
		Data []string `json:"data"`
	} `json:"chapter"`
}

// MangaDex resolves mangadex.org titles through the public JSON API.
// A title becomes one "chapters" category.
type MangaDex struct {
	api       *utils.API
	site      string
	language  string
	cache     *cache.PageCache
	batchSize int
	logger    *zap.SugaredLogger
}

func NewMangaDex(apiURL string, fetcher *utils.Fetcher, pages *cache.PageCache, batchSize int, logger *zap.SugaredLogger) *MangaDex {
	if apiURL == "" {
		apiURL = MangaDexAPI
	}
	return &MangaDex{
		api:       utils.NewAPI(apiURL, fetcher),
		site:      MangaDexSite,
		language:  "en",
		cache:     pages,
		batchSize: batchSize,
		logger:    logger.With("source", "mangadex"),
	}
}

func (m *MangaDex) Name() string   { return "mangadex" }
func (m *MangaDex) Domain() string { return "mangadex.org" }

func (m *MangaDex) Resolve(ctx context.Context, rawURL string, kind data.Kind) (data.Listing, error) {
	if kind == data.KindCurrent {
		id, err := pathID(rawURL, "chapter")
		if err != nil {
			return nil, err
		}
		return m.resolveChapter(ctx, id, "")
	}
	id, err := pathID(rawURL, "title")
	if err != nil {
		return nil, err
	}
	return m.resolveTitle(ctx, id)
}

// pathID returns the segment following kind in a site URL such as
// https://mangadex.org/title/<id>/<slug>.
func pathID(rawURL, kind string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == kind && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("%s: not a %s url", rawURL, kind)
}

func (m *MangaDex) resolveTitle(ctx context.Context, id string) (*data.ComicListing, error) {
	key := cache.Key(m.Name(), "comic", id)

	var listing data.ComicListing
	found, err := m.cache.LoadListing(key, &listing)
	if err != nil {
		m.logger.Warnw("ignoring unreadable cached listing", "key", key, "error", err)
		found = false
	}
	if found && listing.Done {
		return &listing, nil
	}

	if !found || len(listing.Categories) == 0 {
		manga, err := m.getManga(ctx, id)
		if err != nil {
			return nil, err
		}
		groups, err := m.getGroups(ctx, id)
		if err != nil {
			return nil, err
		}
		listing = data.ComicListing{
			PageID:     id,
			Source:     m.Name(),
			ComicName:  manga.Name(),
			Categories: []data.Category{{Label: string(data.KindChapters), Groups: groups}},
		}
	}

	for i := range listing.Categories {
		if err := resolveGroups(ctx, &listing.Categories[i], m.batchSize, m.leaf, m.logger); err != nil {
			return nil, err
		}
		listing.RefreshDone()
		if err := m.cache.SaveListing(key, &listing); err != nil {
			return nil, &data.IOError{Path: key, Err: err}
		}
	}
	return &listing, nil
}

func (m *MangaDex) leaf(ctx context.Context, g *data.Group) (*data.ChapterListing, error) {
	id, err := pathID(g.Href, "chapter")
	if err != nil {
		return nil, err
	}
	return m.resolveChapter(ctx, id, g.Name)
}

func (m *MangaDex) resolveChapter(ctx context.Context, id, name string) (*data.ChapterListing, error) {
	key := cache.Key(m.Name(), "chapter", id)

	var cached data.ChapterListing
	if found, err := m.cache.LoadListing(key, &cached); err == nil && found && cached.Done {
		return &cached, nil
	}

	var server atHome
	if err := m.api.Get(ctx, "/at-home/server/"+id, nil, &server); err != nil {
		return nil, err
	}
	if server.BaseURL == "" || server.Chapter.Hash == "" {
		return nil, &data.ParseError{URL: m.api.URL("/at-home/server/"+id, nil), Selector: "chapter.hash"}
	}

	l := &data.ChapterListing{
		PageID:      id,
		Source:      m.Name(),
		ChapterName: name,
		Href:        fmt.Sprintf("%s/chapter/%s", m.site, id),
		Advertised:  len(server.Chapter.Data),
	}
	for _, file := range server.Chapter.Data {
		l.Images = append(l.Images, fmt.Sprintf("%s/data/%s/%s", server.BaseURL, server.Chapter.Hash, file))
	}
	l.Done = len(l.Images) > 0

	if name == "" {
		if err := m.describeChapter(ctx, id, l); err != nil {
			return nil, err
		}
	}
	if err := m.cache.SaveListing(key, l); err != nil {
		return nil, &data.IOError{Path: key, Err: err}
	}
	return l, nil
}

// describeChapter fills the chapter and comic names of a standalone chapter.
func (m *MangaDex) describeChapter(ctx context.Context, id string, l *data.ChapterListing) error {
	var ch struct {
		Data Chapter `json:"data"`
	}
	if err := m.api.Get(ctx, "/chapter/"+id, nil, &ch); err != nil {
		return err
	}
	l.ChapterName = chapterName(ch.Data.Attributes.Volume, ch.Data.Attributes.Number)
	if mangaID := ch.Data.MangaID(); mangaID != "" {
		manga, err := m.getManga(ctx, mangaID)
		if err != nil {
			return err
		}
		l.ComicName = manga.Name()
	}
	return nil
}

func (m *MangaDex) getManga(ctx context.Context, id string) (*Manga, error) {
	var manga struct {
		Data Manga `json:"data"`
	}
	if err := m.api.Get(ctx, "/manga/"+id, nil, &manga); err != nil {
		return nil, err
	}
	return &manga.Data, nil
}

// getGroups reads the title's aggregate, one group per chapter release,
// ordered by volume then chapter number.
func (m *MangaDex) getGroups(ctx context.Context, id string) ([]data.Group, error) {
	key := cache.Key(m.Name(), "aggregate", id)
	body, ok, err := m.cache.Raw(key)
	if err != nil {
		m.logger.Warnw("read cached page", "key", key, "error", err)
	}
	if !ok {
		params := url.Values{"translatedLanguage[]": {m.language}}
		body, err = m.api.Raw(ctx, "/manga/"+id+"/aggregate", params)
		if err != nil {
			return nil, err
		}
		if err := m.cache.PutRaw(key, body); err != nil {
			m.logger.Errorw("cache page", "key", key, "error", err)
		}
	}

	var agg aggregate
	if err := json.Unmarshal(body, &agg); err != nil {
		return nil, fmt.Errorf("decode aggregate %s: %w", id, err)
	}

	type entry struct {
		group   data.Group
		volume  float64
		chapter float64
	}
	var entries []entry
	for vol, v := range agg.Volumes {
		for _, c := range v.Chapters {
			base := chapterName(vol, c.Chapter)
			entries = append(entries, entry{
				group:   data.Group{Name: base, Href: fmt.Sprintf("%s/chapter/%s", m.site, c.ID)},
				volume:  number(vol),
				chapter: number(c.Chapter),
			})
			for n, other := range c.Others {
				entries = append(entries, entry{
					group:   data.Group{Name: fmt.Sprintf("%s_other_%d", base, n), Href: fmt.Sprintf("%s/chapter/%s", m.site, other)},
					volume:  number(vol),
					chapter: number(c.Chapter),
				})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.volume != b.volume {
			return a.volume < b.volume
		}
		if a.chapter != b.chapter {
			return a.chapter < b.chapter
		}
		return a.group.Name < b.group.Name
	})

	groups := make([]data.Group, len(entries))
	for i, e := range entries {
		groups[i] = e.group
	}
	return groups, nil
}

func chapterName(volume, chapter string) string {
	return fmt.Sprintf("volume%s_chapter%s", volume, chapter)
}

// number parses a volume or chapter label; "none" and other text sort first.
func number(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
