package data

import (
	"encoding/json"
	"fmt"
)

// Item is one image to download.
type Item struct {
	Src  string `json:"src"`
	Done bool   `json:"done"`
}

// Group is a chapter or volume: an ordered run of items.
type Group struct {
	Name  string `json:"name"`
	Href  string `json:"href"`
	Items []Item `json:"items"`
	Count int    `json:"count"` // advertised image count
	Done  bool   `json:"done"`
}

// Refresh recomputes the group flag from its items.
func (g *Group) Refresh() {
	g.Done = len(g.Items) > 0
	for _, it := range g.Items {
		if !it.Done {
			g.Done = false
			return
		}
	}
}

func (g *Group) DoneCount() int {
	n := 0
	for _, it := range g.Items {
		if it.Done {
			n++
		}
	}
	return n
}

type Category struct {
	Label  string  `json:"label"`
	Groups []Group `json:"groups"`
}

// Descriptor is the work tree of a task: category label to ordered groups.
type Descriptor struct {
	Categories []Category `json:"categories"`
}

// Category returns the category with the given label.
func (d *Descriptor) Category(label string) (*Category, bool) {
	for i := range d.Categories {
		if d.Categories[i].Label == label {
			return &d.Categories[i], true
		}
	}
	return nil, false
}

// Select returns a copy of d holding only the labelled category.
func (d *Descriptor) Select(label string) (*Descriptor, bool) {
	c, ok := d.Category(label)
	if !ok {
		return nil, false
	}
	out := &Descriptor{Categories: []Category{cloneCategory(*c)}}
	return out, true
}

func (d *Descriptor) TotalCount() int {
	n := 0
	for _, c := range d.Categories {
		for _, g := range c.Groups {
			n += len(g.Items)
		}
	}
	return n
}

// DoneCount sums item flags. Group flags are never trusted here.
func (d *Descriptor) DoneCount() int {
	n := 0
	for _, c := range d.Categories {
		for i := range c.Groups {
			n += c.Groups[i].DoneCount()
		}
	}
	return n
}

// MarkDone flags one item as done and reports whether it changed.
// There is intentionally no way to clear the flag.
func (d *Descriptor) MarkDone(cat, group, item int) bool {
	if cat < 0 || cat >= len(d.Categories) {
		return false
	}
	c := &d.Categories[cat]
	if group < 0 || group >= len(c.Groups) {
		return false
	}
	g := &c.Groups[group]
	if item < 0 || item >= len(g.Items) || g.Items[item].Done {
		return false
	}
	g.Items[item].Done = true
	if g.DoneCount() == len(g.Items) {
		g.Done = true
	}
	return true
}

func (d *Descriptor) Clone() *Descriptor {
	out := &Descriptor{Categories: make([]Category, len(d.Categories))}
	for i, c := range d.Categories {
		out.Categories[i] = cloneCategory(c)
	}
	return out
}

func cloneCategory(c Category) Category {
	out := Category{Label: c.Label, Groups: make([]Group, len(c.Groups))}
	for j, g := range c.Groups {
		g.Items = append([]Item(nil), g.Items...)
		out.Groups[j] = g
	}
	return out
}

func (d *Descriptor) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	return string(b), nil
}

func DecodeDescriptor(s string) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return &d, nil
}
