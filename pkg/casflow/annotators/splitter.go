package annotators

import (
	"strconv"
	"strings"
	"sync"

	"github.com/randalmurphal/casflow/pkg/casflow"
	"github.com/randalmurphal/casflow/pkg/casflow/cas"
)

// SplitterOption configures a SentenceSplitter.
type SplitterOption func(*SentenceSplitter)

// WithMinLength skips sentences shorter than n bytes after trimming.
func WithMinLength(n int) SplitterOption {
	return func(s *SentenceSplitter) {
		s.minLength = n
	}
}

// SentenceSplitter is a CAS multiplier. It marks sentences in the input
// CAS and outputs one new CAS per sentence, carrying the sentence text,
// the input language, and MetaSourceCAS / MetaSentenceIndex metadata.
//
// One splitter serves many lineages at once; pending sentences are kept
// per input CAS until they are all output or the aggregate discards them.
type SentenceSplitter struct {
	minLength int

	mu      sync.Mutex
	pending map[string]*pendingSentences
}

type pendingSentences struct {
	source    string
	language  string
	sentences []string
	next      int
}

// Compile-time interface check.
var (
	_ casflow.Multiplier = (*SentenceSplitter)(nil)
	_ casflow.Discarder  = (*SentenceSplitter)(nil)
)

// NewSentenceSplitter creates a splitter.
func NewSentenceSplitter(opts ...SplitterOption) *SentenceSplitter {
	s := &SentenceSplitter{
		minLength: 1,
		pending:   make(map[string]*pendingSentences),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process implements casflow.Component.
func (s *SentenceSplitter) Process(ctx casflow.Context, c casflow.CAS) error {
	doc, err := document(c)
	if err != nil {
		return err
	}

	text := doc.Text()
	p := &pendingSentences{source: doc.ID(), language: doc.Language()}
	var anns []cas.Annotation
	for _, span := range splitSentences(text) {
		sentence := strings.TrimSpace(text[span[0]:span[1]])
		if len(sentence) < s.minLength {
			continue
		}
		anns = append(anns, cas.Annotation{Type: TypeSentence, Begin: span[0], End: span[1]})
		p.sentences = append(p.sentences, sentence)
	}
	doc.Annotate(anns...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p.sentences) > 0 {
		s.pending[ctx.CASID()] = p
	} else {
		delete(s.pending, ctx.CASID())
	}
	return nil
}

// HasNext implements casflow.Multiplier.
func (s *SentenceSplitter) HasNext(ctx casflow.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[ctx.CASID()]
	if ok && p.next >= len(p.sentences) {
		delete(s.pending, ctx.CASID())
		return false, nil
	}
	return ok, nil
}

// Next implements casflow.Multiplier. The new CAS comes from ctx.EmptyCAS.
func (s *SentenceSplitter) Next(ctx casflow.Context) (casflow.CAS, error) {
	s.mu.Lock()
	p, ok := s.pending[ctx.CASID()]
	if !ok || p.next >= len(p.sentences) {
		s.mu.Unlock()
		return nil, nil
	}
	idx := p.next
	p.next++
	s.mu.Unlock()

	c, err := ctx.EmptyCAS()
	if err != nil {
		return nil, err
	}
	child, err := document(c)
	if err != nil {
		return c, err
	}
	child.SetText(p.sentences[idx])
	child.SetLanguage(p.language)
	child.SetMeta(MetaSourceCAS, p.source)
	child.SetMeta(MetaSentenceIndex, strconv.Itoa(idx))
	return child, nil
}

// Discard implements casflow.Discarder.
func (s *SentenceSplitter) Discard(ctx casflow.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, ctx.CASID())
}

// Pending returns the number of input CASes with sentences not yet output.
func (s *SentenceSplitter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// splitSentences returns [begin, end) byte spans of sentences in text.
// A sentence ends after '.', '!' or '?' followed by whitespace or the end
// of text. Leading whitespace is excluded from each span.
func splitSentences(text string) [][2]int {
	var spans [][2]int
	begin := -1
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if begin < 0 {
			if isSpace(ch) {
				continue
			}
			begin = i
		}
		if ch == '.' || ch == '!' || ch == '?' {
			if i+1 == len(text) || isSpace(text[i+1]) {
				spans = append(spans, [2]int{begin, i + 1})
				begin = -1
			}
		}
	}
	if begin >= 0 {
		end := len(text)
		for end > begin && isSpace(text[end-1]) {
			end--
		}
		spans = append(spans, [2]int{begin, end})
	}
	return spans
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
