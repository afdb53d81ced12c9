package model

import "ai-playground/internal/domain"

// Well-known slots read by the preview renderer.
const (
	IndexHTML = "index.html"
	AppJS     = "app.js"
	StylesCSS = "styles.css"
)

// VirtualFile is one file of the sandboxed project. Name is a flat key.
type VirtualFile struct {
	Name     string   `json:"name"`
	Language Language `json:"language"`
	Content  string   `json:"content"`
}

// FileStore maps file name to file record, keeping insertion order so that
// listings, prompts and previews are deterministic. It is not safe for
// concurrent use; callers serialize access per session.
type FileStore struct {
	order []string
	files map[string]VirtualFile
}

func NewFileStore() *FileStore {
	return &FileStore{files: make(map[string]VirtualFile, 4)}
}

// NewSeededFileStore returns the three files every new session starts with.
func NewSeededFileStore() *FileStore {
	s := NewFileStore()
	s.Set(IndexHTML, seedIndexHTML)
	s.Set(AppJS, seedAppJS)
	s.Set(StylesCSS, seedStylesCSS)
	return s
}

// Get returns the file and whether it exists. A miss is not an error.
func (s *FileStore) Get(name string) (VirtualFile, bool) {
	f, ok := s.files[name]
	return f, ok
}

// Content returns the file content or "" when absent.
func (s *FileStore) Content(name string) string {
	return s.files[name].Content
}

// Set overwrites the content of an existing file, keeping its language, or
// inserts a new file with the language inferred from its extension.
func (s *FileStore) Set(name, content string) error {
	if name == "" {
		return domain.ErrInvalidArgument
	}
	if f, ok := s.files[name]; ok {
		f.Content = content
		s.files[name] = f
		return nil
	}
	s.insert(VirtualFile{Name: name, Language: LanguageForName(name), Content: content})
	return nil
}

// Put creates or fully replaces a file. An existing file keeps its position
// and language unless lang is known.
func (s *FileStore) Put(name string, lang Language, content string) error {
	if name == "" {
		return domain.ErrInvalidArgument
	}
	if f, ok := s.files[name]; ok {
		f.Content = content
		if lang.Known() && !f.Language.Known() {
			f.Language = lang
		}
		s.files[name] = f
		return nil
	}
	if !lang.Known() {
		lang = LanguageForName(name)
	}
	s.insert(VirtualFile{Name: name, Language: lang, Content: content})
	return nil
}

func (s *FileStore) insert(f VirtualFile) {
	s.order = append(s.order, f.Name)
	s.files[f.Name] = f
}

func (s *FileStore) Len() int { return len(s.order) }

func (s *FileStore) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Files returns a copy of all records in insertion order.
func (s *FileStore) Files() []VirtualFile {
	out := make([]VirtualFile, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.files[n])
	}
	return out
}

func (s *FileStore) Clone() *FileStore {
	c := NewFileStore()
	for _, f := range s.Files() {
		c.insert(f)
	}
	return c
}

const seedIndexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Playground</title>
  <link rel="stylesheet" href="styles.css">
</head>
<body>
  <div id="app">
    <h1>Hello, Playground!</h1>
    <p>Edit the files or ask the assistant to build something.</p>
    <button id="btn">Click me</button>
  </div>
  <script src="app.js"></script>
</body>
</html>`

const seedAppJS = `const btn = document.getElementById('btn');
let clicks = 0;
btn.addEventListener('click', () => {
  clicks++;
  btn.textContent = 'Clicked ' + clicks + ' times';
});`

const seedStylesCSS = `body {
  font-family: system-ui, -apple-system, sans-serif;
  margin: 0;
  padding: 2rem;
  background: #f7f7f8;
}

#app {
  max-width: 640px;
  margin: 0 auto;
}

button {
  padding: 0.5rem 1rem;
  border-radius: 6px;
  border: 1px solid #888;
  cursor: pointer;
}`
