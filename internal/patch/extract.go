// Package patch turns a model reply into file edits. Extract scans the reply
// for fenced code blocks annotated as ```language:filename and Apply merges
// them into a session's FileStore with create-or-overwrite semantics.
package patch

import (
	"fmt"
	"strings"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
)

const fence = "```"

type IssueKind string

const (
	// IssueUnterminated is an opening fence with no closing fence after it.
	IssueUnterminated IssueKind = "unterminated"
	// IssueMissingLanguage is a complete block whose info string has no language token.
	IssueMissingLanguage IssueKind = "missing_language"
)

// Issue reports a fence that could not become a Block.
type Issue struct {
	Kind IssueKind `json:"kind"`
	Line int       `json:"line"` // 1-based line of the opening fence
	Info string    `json:"info"`
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s fence %q", i.Line, i.Kind, i.Info)
}

// Block is one extracted file edit.
type Block struct {
	Filename string         `json:"filename"`
	Language model.Language `json:"language"`
	Tag      string         `json:"tag"` // language token exactly as written
	Code     string         `json:"code"`
	Line     int            `json:"line"`
}

// Result holds blocks in document order plus any malformed fences.
type Result struct {
	Blocks []Block
	Issues []Issue
}

func (r Result) Empty() bool { return len(r.Blocks) == 0 }

// Err is non-nil only when nothing usable was found but malformed fences
// were, so callers can tell "no code in reply" from "broken code in reply".
func (r Result) Err() error {
	if len(r.Blocks) > 0 || len(r.Issues) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		msgs = append(msgs, is.String())
	}
	return fmt.Errorf("%w: %s", domain.ErrParse, strings.Join(msgs, "; "))
}

// Extract scans text for fenced blocks of the form
//
//	```tag[:filename]\n body ```
//
// A fence opens only where the tag follows the backticks directly and the
// info line ends after the optional filename; any other "```" is prose and
// scanning resumes just past it. The body runs to the next fence. A block
// without a filename gets "<tag>.<tag>" as its name.
func Extract(text string) Result {
	var res Result
	pos := 0
	for pos < len(text) {
		i := strings.Index(text[pos:], fence)
		if i < 0 {
			break
		}
		open := pos + i
		o, ok := openAt(text, open)
		if !ok {
			pos = open + 1
			continue
		}
		end := strings.Index(text[o.body:], fence)
		if end < 0 {
			if o.tag != "" {
				res.Issues = append(res.Issues, Issue{Kind: IssueUnterminated, Line: lineOf(text, open), Info: o.info})
			}
			break
		}
		body := text[o.body : o.body+end]
		pos = o.body + end + len(fence)

		if o.tag == "" {
			res.Issues = append(res.Issues, Issue{Kind: IssueMissingLanguage, Line: lineOf(text, open), Info: o.info})
			continue
		}
		filename := o.filename
		if filename == "" {
			filename = o.tag + "." + o.tag
		}
		res.Blocks = append(res.Blocks, Block{
			Filename: filename,
			Language: model.ParseLanguage(o.tag),
			Tag:      o.tag,
			Code:     strings.TrimSpace(body),
			Line:     lineOf(text, open),
		})
	}
	return res
}

type opener struct {
	tag, filename string
	info          string // info line as written, trimmed
	body          int    // offset of the first body byte
}

// openAt reports whether the fence at text[open:] opens a block. Accepted
// info lines are "tag", "tag:filename" and, for the missing-language case,
// nothing at all; trailing spaces and a CR before the newline are ignored.
func openAt(text string, open int) (opener, bool) {
	start := open + len(fence)
	nl := strings.IndexByte(text[start:], '\n')
	if nl < 0 {
		return opener{}, false
	}
	line := strings.TrimRight(text[start:start+nl], " \t\r")
	o := opener{info: strings.TrimSpace(line), body: start + nl + 1}

	n := 0
	for n < len(line) && isTagByte(line[n]) {
		n++
	}
	o.tag, line = line[:n], line[n:]
	switch {
	case line == "":
		return o, true
	case o.tag == "" || line[0] != ':':
		return opener{}, false
	}
	name := strings.TrimLeft(line[1:], " \t")
	if name == "" || strings.ContainsAny(name, " \t`") {
		return opener{}, false
	}
	o.filename = name
	return o, true
}
func isTagByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '+' || c == '#':
		return true
	}
	return false
}

func lineOf(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
