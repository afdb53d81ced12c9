package patch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"ai-playground/internal/domain/model"
)

// Change describes what Apply did to one file.
type Change struct {
	Filename  string         `json:"filename"`
	Language  model.Language `json:"language"`
	Created   bool           `json:"created"`
	Unchanged bool           `json:"unchanged"`
	Added     int            `json:"added"`   // lines
	Removed   int            `json:"removed"` // lines
}

func (c Change) String() string {
	switch {
	case c.Created:
		return fmt.Sprintf("created %s (+%d)", c.Filename, c.Added)
	case c.Unchanged:
		return fmt.Sprintf("%s unchanged", c.Filename)
	default:
		return fmt.Sprintf("updated %s (+%d -%d)", c.Filename, c.Added, c.Removed)
	}
}

// Apply merges blocks into store in order. An existing file's content is
// replaced wholesale; a missing file is created with the block's language.
// Later blocks for the same file win. No blocks means no mutation.
func Apply(store *model.FileStore, blocks []Block) []Change {
	if len(blocks) == 0 {
		return nil
	}
	changes := make([]Change, 0, len(blocks))
	for _, b := range blocks {
		old, existed := store.Get(b.Filename)
		_ = store.Put(b.Filename, b.Language, b.Code)
		f, _ := store.Get(b.Filename)

		c := Change{Filename: b.Filename, Language: f.Language, Created: !existed}
		if existed && old.Content == b.Code {
			c.Unchanged = true
		} else {
			c.Added, c.Removed = lineDelta(old.Content, b.Code)
		}
		changes = append(changes, c)
	}
	return changes
}

// Summary joins change descriptions for a transcript note.
func Summary(changes []Change) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ", ")
}

func lineDelta(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
