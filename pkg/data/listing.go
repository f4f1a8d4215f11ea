package data

import "fmt"

// Listing is the result of resolving a source page. It is either a
// *ComicListing or a *ChapterListing; consumers switch on the concrete type.
type Listing interface {
	listing()
	IsDone() bool
}

// ComicListing is a comic page resolved into categories of groups.
type ComicListing struct {
	PageID     string     `json:"page_id"`
	Source     string     `json:"source"`
	ComicName  string     `json:"comic_name"`
	Categories []Category `json:"categories"`
	Done       bool       `json:"done"`
}

// ChapterListing is a single chapter page resolved into image URLs.
type ChapterListing struct {
	PageID      string   `json:"page_id"`
	Source      string   `json:"source"`
	ComicName   string   `json:"comic_name"`
	ChapterName string   `json:"chapter_name"`
	Href        string   `json:"href"`
	Advertised  int      `json:"advertised"`
	Images      []string `json:"images"`
	Done        bool     `json:"done"`
}

func (*ComicListing) listing()   {}
func (*ChapterListing) listing() {}

func (l *ComicListing) IsDone() bool   { return l.Done }
func (l *ChapterListing) IsDone() bool { return l.Done }

// Pending lists "category/group" names that still need resolution.
func (l *ComicListing) Pending() []string {
	var out []string
	for _, c := range l.Categories {
		for _, g := range c.Groups {
			if !g.Done {
				out = append(out, c.Label+"/"+g.Name)
			}
		}
	}
	return out
}

// RefreshDone recomputes Done from the group flags.
func (l *ComicListing) RefreshDone() {
	l.Done = len(l.Categories) > 0
	for _, c := range l.Categories {
		for _, g := range c.Groups {
			if !g.Done {
				l.Done = false
				return
			}
		}
	}
}

// Group turns the chapter into a descriptor group with nothing downloaded.
func (l *ChapterListing) Group() Group {
	items := make([]Item, len(l.Images))
	for i, src := range l.Images {
		items[i] = Item{Src: src}
	}
	return Group{
		Name:  l.ChapterName,
		Href:  l.Href,
		Items: items,
		Count: l.Advertised,
		Done:  false,
	}
}

// ListingDescriptor converts any listing into a fresh work descriptor.
// Resolution flags on groups are reset: a resolved group is not a
// downloaded group.
func ListingDescriptor(l Listing) (*Descriptor, error) {
	switch v := l.(type) {
	case *ComicListing:
		d := &Descriptor{Categories: make([]Category, len(v.Categories))}
		for i, c := range v.Categories {
			cat := Category{Label: c.Label, Groups: make([]Group, len(c.Groups))}
			for j, g := range c.Groups {
				items := make([]Item, len(g.Items))
				for k, it := range g.Items {
					items[k] = Item{Src: it.Src}
				}
				cat.Groups[j] = Group{Name: g.Name, Href: g.Href, Items: items, Count: g.Count}
			}
			d.Categories[i] = cat
		}
		return d, nil
	case *ChapterListing:
		return &Descriptor{Categories: []Category{{
			Label:  string(KindCurrent),
			Groups: []Group{v.Group()},
		}}}, nil
	case nil:
		return nil, fmt.Errorf("nil listing")
	default:
		return nil, fmt.Errorf("unsupported listing %T", l)
	}
}
