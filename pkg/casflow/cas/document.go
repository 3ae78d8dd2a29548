// Package cas provides an in-memory CAS and a bounded pool of them.
//
// A Document holds the artifact text, a language tag, stand-off
// annotations, and free-form metadata. The flow engine only sees the
// casflow.CAS handle; components type-assert to *Document to read and
// annotate.
package cas

import (
	"sort"
	"sync"

	"github.com/randalmurphal/casflow/pkg/casflow"
)

// Annotation marks a span of the document text with a type and features.
// Begin and End are byte offsets into the text.
type Annotation struct {
	Type     string
	Begin    int
	End      int
	Features map[string]string
}

// Covered returns the text covered by a within text.
// Out-of-range offsets are clamped.
func (a Annotation) Covered(text string) string {
	begin, end := max(a.Begin, 0), min(a.End, len(text))
	if begin >= end {
		return ""
	}
	return text[begin:end]
}

// Document is an in-memory CAS.
// It is safe for concurrent use, though the engine hands a CAS to one
// component at a time.
type Document struct {
	mu          sync.RWMutex
	id          string
	text        string
	language    string
	annotations []Annotation
	metadata    map[string]string
	pool        *Pool
}

// Compile-time interface check.
var _ casflow.CAS = (*Document)(nil)

// NewDocument returns a free-standing document with the given id and text.
// It does not belong to any pool.
func NewDocument(id, text string) *Document {
	return &Document{id: id, text: text, metadata: make(map[string]string)}
}

// ID implements casflow.CAS.
func (d *Document) ID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

// Text returns the document text.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// SetText replaces the document text.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// Language returns the language tag, or "" if unset.
func (d *Document) Language() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.language
}

// SetLanguage sets the language tag.
func (d *Document) SetLanguage(lang string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.language = lang
}

// Annotate adds annotations.
func (d *Document) Annotate(anns ...Annotation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.annotations = append(d.annotations, anns...)
}

// Annotations returns the annotations of type typ ordered by Begin,
// or all annotations if typ is empty.
func (d *Document) Annotations(typ string) []Annotation {
	d.mu.RLock()
	var out []Annotation
	for _, a := range d.annotations {
		if typ == "" || a.Type == typ {
			out = append(out, a)
		}
	}
	d.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Begin < out[j].Begin })
	return out
}

// Meta returns the metadata value for key.
func (d *Document) Meta(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.metadata[key]
	return v, ok
}

// SetMeta sets a metadata value.
func (d *Document) SetMeta(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadata[key] = value
}

// Metadata returns a copy of all metadata.
func (d *Document) Metadata() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		out[k] = v
	}
	return out
}

// reset clears the content so the document can be handed out again.
func (d *Document) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = ""
	d.language = ""
	d.annotations = nil
	d.metadata = make(map[string]string)
}

// renew gives a reused document the id of its new acquisition.
func (d *Document) renew(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.id = id
}
