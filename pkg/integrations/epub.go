package integrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/utils"
)

type EPubBuilder struct {
	outputDir string
	ascii     bool // must match the setting the task was downloaded with
}

func NewEPubBuilder(outputDir string, ascii bool) *EPubBuilder {
	return &EPubBuilder{outputDir: outputDir, ascii: ascii}
}

// Build compiles the downloaded images of a task into a single EPub file,
// one section per group, and returns its path.
func (p *EPubBuilder) Build(task *data.Task, desc *data.Descriptor) (string, error) {
	if desc.DoneCount() == 0 {
		return "", fmt.Errorf("task %d: no downloaded images to compile", task.ID)
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	e, err := epub.NewEpub(task.ComicName)
	if err != nil {
		return "", fmt.Errorf("failed to create EPub: %w", err)
	}
	if task.Author != "" {
		e.SetAuthor(task.Author)
	}
	e.SetDescription(task.URL)

	sections := 0
	for ci, cat := range desc.Categories {
		for gi, g := range cat.Groups {
			added, err := p.addGroup(e, task, cat.Label, ci, gi, g)
			if err != nil {
				return "", fmt.Errorf("failed to add %s: %w", g.Name, err)
			}
			if added {
				sections++
			}
		}
	}
	if sections == 0 {
		return "", fmt.Errorf("task %d: downloaded images are missing from %s", task.ID, task.LocalPath)
	}

	name := utils.SanitizeName(task.ComicName, p.ascii)
	if task.Kind != data.KindCurrent {
		name += "_" + string(task.Kind)
	}
	outputPath := filepath.Join(p.outputDir, name+".epub")
	if err := e.Write(outputPath); err != nil {
		return "", fmt.Errorf("failed to write EPub: %w", err)
	}
	return outputPath, nil
}

// addGroup adds the group's downloaded pages as one section. Groups with
// no pages on disk are skipped.
func (p *EPubBuilder) addGroup(e *epub.Epub, task *data.Task, label string, ci, gi int, g data.Group) (bool, error) {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("<h1>%s</h1>\n", g.Name))

	pages := 0
	for i, it := range g.Items {
		if !it.Done {
			continue
		}
		path := utils.ItemPath(task.LocalPath, label, gi, g.Name, i, ".jpg", p.ascii)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		internal, err := e.AddImage(path, fmt.Sprintf("c%02d_g%04d_%04d.jpg", ci, gi, i+1))
		if err != nil {
			return false, fmt.Errorf("failed to add image %s: %w", path, err)
		}
		pages++
		body.WriteString(fmt.Sprintf(
			`<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>%s`,
			internal, i+1, "\n",
		))
	}
	if pages == 0 {
		return false, nil
	}

	if _, err := e.AddSection(body.String(), g.Name, "", ""); err != nil {
		return false, fmt.Errorf("failed to add section: %w", err)
	}
	return true, nil
}
