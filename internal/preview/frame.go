package preview

import (
	"bytes"
	"html/template"
	"strconv"
)

// Frame is what the host page needs to mount the preview iframe. The
// document always goes to srcdoc, never src. Key changes on a manual refresh
// so clients remount the iframe even when SrcDoc is identical.
type Frame struct {
	SrcDoc  string `json:"srcdoc"`
	Sandbox string `json:"sandbox"`
	Key     string `json:"key"`
	Failed  bool   `json:"failed"`
}

func NewFrame(doc string, generation int64) Frame {
	return Frame{SrcDoc: doc, Sandbox: SandboxPolicy, Key: "preview-" + strconv.FormatInt(generation, 10)}
}

// ErrorFrame carries the static inline error shown instead of a broken preview.
func ErrorFrame(generation int64) Frame {
	f := NewFrame(ErrorDocument, generation)
	f.Failed = true
	return f
}

// ErrorDocument replaces the preview when composing fails.
const ErrorDocument = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Preview error</title></head>
<body style="font-family:system-ui,sans-serif;color:#991b1b;padding:1rem">
<p>Preview could not be rendered. Check your files and try again.</p>
</body></html>`

var hostPage = template.Must(template.New("frame").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Preview</title>
<style>
html,body{margin:0;height:100%}
iframe{border:0;width:100%;height:100%;display:block}
</style>
</head>
<body>
<iframe id="{{.Key}}" title="Preview" sandbox="{{.Sandbox}}" srcdoc="{{.SrcDoc}}"></iframe>
</body>
</html>`))

// HostPage renders a minimal page embedding the frame.
func HostPage(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := hostPage.Execute(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
