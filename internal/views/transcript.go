package views

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"

	"ai-playground/internal/domain/model"
)

// MessageData is one transcript entry prepared for the HTML view.
type MessageData struct {
	ID       string
	Role     string
	Error    bool
	Rendered template.HTML
}

var policy = bluemonday.UGCPolicy()

// RenderText converts assistant markdown to sanitized HTML.
func RenderText(text string) template.HTML {
	html := blackfriday.Run([]byte(text),
		blackfriday.WithExtensions(
			blackfriday.CommonExtensions|blackfriday.Autolink))
	return template.HTML(policy.SanitizeBytes(html))
}

// RenderPlain escapes user text and keeps its line breaks.
func RenderPlain(text string) template.HTML {
	esc := template.HTMLEscapeString(text)
	return template.HTML(`<div class="preserve-breaks">` + strings.ReplaceAll(esc, "\n", "<br>") + `</div>`)
}

// Messages prepares a transcript for rendering. Only model replies are
// treated as markdown; user input and error notices stay plain text.
func Messages(msgs []model.ChatMessage) []MessageData {
	out := make([]MessageData, 0, len(msgs))
	for _, m := range msgs {
		d := MessageData{ID: m.ID, Role: string(m.Role), Error: m.Error}
		if m.Role == model.RoleAssistant && !m.Error {
			d.Rendered = RenderText(m.Content)
		} else {
			d.Rendered = RenderPlain(m.Content)
		}
		out = append(out, d)
	}
	return out
}

var transcriptTmpl = template.Must(template.New("transcript").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<title>Transcript</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:1rem auto;padding:0 1rem}
.msg{border-radius:.5rem;padding:.5rem .75rem;margin:.5rem 0}
.user{background:#eef2ff}
.assistant{background:#f4f4f5}
.error{background:#fef2f2;color:#991b1b}
.preserve-breaks{white-space:normal}
pre{overflow:auto;background:#18181b;color:#f4f4f5;padding:.5rem}
</style>
</head>
<body>
{{range .}}<div class="msg {{.Role}}{{if .Error}} error{{end}}" id="msg-{{.ID}}">{{.Rendered}}</div>
{{end}}</body>
</html>`))

// RenderTranscript returns a standalone HTML page for the transcript.
func RenderTranscript(msgs []model.ChatMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := transcriptTmpl.Execute(&buf, Messages(msgs)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
