package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alexsergivan/transliterator"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	reInvalidPath = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	reSpaces      = regexp.MustCompile(`\s+`)

	foldChain = transform.Chain(norm.NFC, runes.If(runes.In(unicode.Latin), width.Fold, nil))
	asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	translit  = transliterator.NewTransliterator(nil)
)

// SanitizeName turns a display name into a single safe path segment.
// With ascii set, non-ASCII text is transliterated where a mapping exists.
func SanitizeName(name string, ascii bool) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "_"
	}

	out, _, err := transform.String(foldChain, name)
	if err != nil || out == "" {
		out = name
	}

	if ascii && !isASCII(out) {
		folded, _, err := transform.String(asciiFold, out)
		if err == nil && folded != "" {
			out = folded
		}
		if t := strings.TrimSpace(translit.Transliterate(out, "")); t != "" {
			out = t
		}
	}

	out = reInvalidPath.ReplaceAllString(out, "_")
	out = reSpaces.ReplaceAllString(out, " ")
	out = strings.Trim(out, " .")
	if out == "" {
		return "_"
	}
	return out
}

// TaskDir is the destination directory of a comic: root[/author]/comic.
func TaskDir(root, author, comic string, ascii bool) string {
	parts := []string{root}
	if strings.TrimSpace(author) != "" {
		parts = append(parts, SanitizeName(author, ascii))
	}
	parts = append(parts, SanitizeName(comic, ascii))
	return filepath.Join(parts...)
}

// ItemPath is the deterministic file path of one image under a task
// directory built by TaskDir. Group directories carry the group's position
// in its category, so groups sharing a display name never collide.
// groupIndex and index are zero based; both are numbered from 1 on disk.
func ItemPath(taskDir, category string, groupIndex int, group string, index int, ext string, ascii bool) string {
	if ext == "" {
		ext = ".jpg"
	}
	return filepath.Join(
		taskDir,
		SanitizeName(category, ascii),
		fmt.Sprintf("%03d_%s", groupIndex+1, SanitizeName(group, ascii)),
		fmt.Sprintf("%04d%s", index+1, ext),
	)
}

func isASCII(s string) bool {
	for _, c := range s {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
