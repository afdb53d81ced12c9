// Package preview composes a session's index.html, styles.css and app.js into
// one self-contained document for a sandboxed iframe's srcdoc.
package preview

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
)

// SandboxPolicy allows scripts and modal dialogs only. Same-origin, top
// navigation, forms and popups stay denied.
const SandboxPolicy = "allow-scripts allow-modals"

// Files is the read side of a FileStore.
type Files interface {
	Content(name string) string
}

var (
	headCloseRe  = regexp.MustCompile(`(?i)</head\s*>`)
	bodyCloseRe  = regexp.MustCompile(`(?i)</body\s*>`)
	appScriptRe  = regexp.MustCompile(`(?is)<script\b[^>]*\bsrc\s*=\s*["']?(?:\./)?app\.js["']?[^>]*>\s*</script\s*>\n?`)
	stylesLinkRe = regexp.MustCompile(`(?is)<link\b[^>]*\bhref\s*=\s*["']?(?:\./)?styles\.css["']?[^>]*>\n?`)
	scriptEndRe  = regexp.MustCompile(`(?i)</(script)`)
	styleEndRe   = regexp.MustCompile(`(?i)</(style)`)
)

const errorBannerJS = `} catch (err) {
  var root = document.body || document.documentElement;
  var banner = document.createElement('div');
  banner.setAttribute('data-preview-error', '');
  banner.style.cssText = 'background:#fee2e2;color:#991b1b;padding:8px 12px;font:13px/1.4 monospace;border-bottom:1px solid #fca5a5;white-space:pre-wrap';
  banner.textContent = 'Error: ' + (err && err.message ? err.message : String(err));
  root.insertBefore(banner, root.firstChild);
  console.error(err);
}`

// Renderer composes preview documents. A zero MaxBytes means no limit.
type Renderer struct {
	MaxBytes int
}

func NewRenderer(maxBytes int) *Renderer {
	return &Renderer{MaxBytes: maxBytes}
}

// Compose builds the combined document. The output depends only on the three
// slot contents, so equal inputs give byte-identical documents. Insertion
// points are located in index.html before anything is inlined, so markup
// inside styles.css or app.js never moves them.
func (r *Renderer) Compose(files Files) (string, error) {
	doc := files.Content(model.IndexHTML)
	css, js := files.Content(model.StylesCSS), files.Content(model.AppJS)
	hasCSS, hasJS := strings.TrimSpace(css) != "", strings.TrimSpace(js) != ""

	if hasCSS {
		doc = stylesLinkRe.ReplaceAllString(doc, "")
	}
	if hasJS {
		doc = appScriptRe.ReplaceAllString(doc, "")
	}

	// Applied from the end of the document backwards; on equal offsets the
	// script goes first so the style ends up in front of it.
	var edits []insertion
	if hasJS {
		at := len(doc)
		if all := bodyCloseRe.FindAllStringIndex(doc, -1); len(all) > 0 {
			at = all[len(all)-1][0]
		}
		edits = append(edits, insertion{at, "<script>\ntry {\n" + scriptEndRe.ReplaceAllString(js, `<\/$1`) + "\n" + errorBannerJS + "\n</script>\n"})
	}
	if hasCSS {
		at := 0
		if loc := headCloseRe.FindStringIndex(doc); loc != nil {
			at = loc[0]
		}
		edits = append(edits, insertion{at, "<style>\n" + styleEndRe.ReplaceAllString(css, `<\/$1`) + "\n</style>\n"})
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].at > edits[j].at })
	for _, e := range edits {
		doc = doc[:e.at] + e.text + doc[e.at:]
	}

	if r.MaxBytes > 0 && len(doc) > r.MaxBytes {
		return "", fmt.Errorf("%w: document is %d bytes, limit %d", domain.ErrRender, len(doc), r.MaxBytes)
	}
	return doc, nil
}

type insertion struct {
	at   int
	text string
}

// Compose uses a Renderer without a size limit.
func Compose(files Files) (string, error) {
	return (&Renderer{}).Compose(files)
}
