package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kerbaras/comicdl/pkg/cache"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/utils"
)

const (
	selComicName   = ".uk-heading-line.mt10.m10.mbn"
	selCategory    = "h3.uk-alert-warning"
	selCategoryBox = ".uk-container .uk-switcher.uk-margin"
	selGroupLink   = "a.zj-container"
	selCrumbComic  = ".uk-breadcrumb.pl0 a"
	selCrumbLeaf   = ".uk-breadcrumb.pl0 span"
	selImageCount  = ".uk-badge.ml8"
	selImages      = ".uk-zjimg img"
)

// categoryLabels maps the site's section titles to descriptor labels.
var categoryLabels = map[string]string{
	"单行本": string(data.KindVolumes),
	"单话":  string(data.KindChapters),
	"番外篇": string(data.KindExtras),
}

// CategoryLabel returns the descriptor label for a section title. Unknown
// titles keep their trimmed text.
func CategoryLabel(title string) string {
	title = strings.TrimSpace(title)
	if l, ok := categoryLabels[title]; ok {
		return l
	}
	return title
}

// Antbyw resolves comic and chapter pages of antbyw.com.
type Antbyw struct {
	fetcher   *utils.Fetcher
	cache     *cache.PageCache
	batchSize int
	logger    *zap.SugaredLogger
}

func NewAntbyw(fetcher *utils.Fetcher, pages *cache.PageCache, batchSize int, logger *zap.SugaredLogger) *Antbyw {
	return &Antbyw{
		fetcher:   fetcher,
		cache:     pages,
		batchSize: batchSize,
		logger:    logger.With("source", "antbyw"),
	}
}

func (a *Antbyw) Name() string   { return "antbyw" }
func (a *Antbyw) Domain() string { return "antbyw.com" }

func (a *Antbyw) Resolve(ctx context.Context, rawURL string, kind data.Kind) (data.Listing, error) {
	if kind == data.KindCurrent {
		return a.ResolveChapter(ctx, rawURL)
	}
	return a.ResolveComic(ctx, rawURL)
}

// ResolveComic resolves a comic page and every chapter page under it.
// Progress is saved after each category so an interrupted resolution
// resumes where it stopped.
func (a *Antbyw) ResolveComic(ctx context.Context, rawURL string) (*data.ComicListing, error) {
	pageID, err := cache.PageID(rawURL, "kuid")
	if err != nil {
		return nil, err
	}
	key := cache.Key(a.Name(), "comic", pageID)

	var listing data.ComicListing
	found, err := a.cache.LoadListing(key, &listing)
	if err != nil {
		a.logger.Warnw("ignoring unreadable cached listing", "key", key, "error", err)
		found = false
	}
	if found && listing.Done {
		return &listing, nil
	}

	if !found || len(listing.Categories) == 0 {
		body, err := a.page(ctx, rawURL, key)
		if err != nil {
			return nil, err
		}
		parsed, err := parseComic(rawURL, body)
		if err != nil {
			a.dropUnparsable(key, err)
			return nil, err
		}
		listing = *parsed
		listing.PageID = pageID
		listing.Source = a.Name()
		if err := a.cache.SaveListing(key, &listing); err != nil {
			return nil, &data.IOError{Path: key, Err: err}
		}
	} else {
		pending := listing.Pending()
		a.logger.Infow("resuming comic resolution", "key", key, "pending", len(pending))
	}

	for i := range listing.Categories {
		if err := resolveGroups(ctx, &listing.Categories[i], a.batchSize, a.leaf, a.logger); err != nil {
			return nil, err
		}
		listing.RefreshDone()
		if err := a.cache.SaveListing(key, &listing); err != nil {
			return nil, &data.IOError{Path: key, Err: err}
		}
	}
	return &listing, nil
}

func (a *Antbyw) leaf(ctx context.Context, g *data.Group) (*data.ChapterListing, error) {
	return a.ResolveChapter(ctx, g.Href)
}

// ResolveChapter resolves one chapter page into its image URLs. The
// listing is done only when the image count matches the advertised count;
// otherwise the cached page is dropped so the next call fetches it again.
func (a *Antbyw) ResolveChapter(ctx context.Context, rawURL string) (*data.ChapterListing, error) {
	pageID, err := cache.PageID(rawURL, "zjid")
	if err != nil {
		return nil, err
	}
	key := cache.Key(a.Name(), "chapter", pageID)

	var cached data.ChapterListing
	if found, err := a.cache.LoadListing(key, &cached); err == nil && found && cached.Done {
		return &cached, nil
	}

	body, err := a.page(ctx, rawURL, key)
	if err != nil {
		return nil, err
	}
	l, err := parseChapter(rawURL, body)
	if err != nil {
		a.dropUnparsable(key, err)
		return nil, err
	}
	l.PageID = pageID
	l.Source = a.Name()
	l.Href = rawURL
	l.Done = len(l.Images) == l.Advertised

	if !l.Done {
		a.logger.Warnw("chapter image count mismatch",
			"url", rawURL, "advertised", l.Advertised, "found", len(l.Images))
		if err := a.cache.EvictRaw(key); err != nil {
			a.logger.Warnw("evict cached page", "key", key, "error", err)
		}
	}
	if err := a.cache.SaveListing(key, l); err != nil {
		return nil, &data.IOError{Path: key, Err: err}
	}
	return l, nil
}

// page returns the raw page for key, fetching and caching it on a miss.
func (a *Antbyw) page(ctx context.Context, rawURL, key string) ([]byte, error) {
	body, ok, err := a.cache.Raw(key)
	if err != nil {
		a.logger.Warnw("read cached page", "key", key, "error", err)
	}
	if ok {
		return body, nil
	}
	body, err = a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := a.cache.PutRaw(key, body); err != nil {
		a.logger.Errorw("cache page", "key", key, "error", err)
	}
	return body, nil
}

// dropUnparsable evicts a cached page the parser could not read, such as
// a truncated file or an error page served with 200.
func (a *Antbyw) dropUnparsable(key string, err error) {
	var pe *data.ParseError
	if !errors.As(err, &pe) {
		return
	}
	if err := a.cache.EvictRaw(key); err != nil {
		a.logger.Warnw("evict cached page", "key", key, "error", err)
	}
}

func parseComic(pageURL string, body []byte) (*data.ComicListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	name := doc.Find(selComicName).First()
	if name.Length() == 0 {
		return nil, &data.ParseError{URL: pageURL, Selector: selComicName}
	}
	titles := doc.Find(selCategory)
	if titles.Length() == 0 {
		return nil, &data.ParseError{URL: pageURL, Selector: selCategory}
	}
	boxes := doc.Find(selCategoryBox)
	if boxes.Length() == 0 {
		return nil, &data.ParseError{URL: pageURL, Selector: selCategoryBox}
	}

	listing := &data.ComicListing{ComicName: strings.TrimSpace(name.Text())}
	n := min(titles.Length(), boxes.Length())
	for i := 0; i < n; i++ {
		cat := data.Category{Label: CategoryLabel(titles.Eq(i).Text())}
		boxes.Eq(i).Find(selGroupLink).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				return
			}
			cat.Groups = append(cat.Groups, data.Group{
				Name: strings.TrimSpace(s.Text()),
				Href: base.ResolveReference(ref).String(),
			})
		})
		sort.SliceStable(cat.Groups, func(a, b int) bool {
			return LeadingNumber(cat.Groups[a].Name) < LeadingNumber(cat.Groups[b].Name)
		})
		listing.Categories = append(listing.Categories, cat)
	}
	return listing, nil
}

func parseChapter(pageURL string, body []byte) (*data.ChapterListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	comic := doc.Find(selCrumbComic).Last()
	if comic.Length() == 0 {
		return nil, &data.ParseError{URL: pageURL, Selector: selCrumbComic}
	}
	leaf := doc.Find(selCrumbLeaf).Last()
	if leaf.Length() == 0 {
		return nil, &data.ParseError{URL: pageURL, Selector: selCrumbLeaf}
	}
	count := doc.Find(selImageCount).First()
	if count.Length() == 0 {
		return nil, &data.ParseError{URL: pageURL, Selector: selImageCount}
	}

	l := &data.ChapterListing{
		ComicName:   strings.TrimSpace(comic.Text()),
		ChapterName: strings.TrimSpace(leaf.Text()),
		Advertised:  LeadingNumber(count.Text()),
	}
	doc.Find(selImages).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("data-src"); ok && strings.TrimSpace(src) != "" {
			l.Images = append(l.Images, strings.TrimSpace(src))
		}
	})
	return l, nil
}
