// Package annotators provides sample components for cas.Document:
// a whitespace tokenizer, a sentence splitting CAS multiplier, and a
// token counter.
package annotators

import (
	"errors"
	"fmt"
	"strconv"
	"unicode"

	"github.com/randalmurphal/casflow/pkg/casflow"
	"github.com/randalmurphal/casflow/pkg/casflow/cas"
	"github.com/randalmurphal/casflow/pkg/casflow/config"
	"github.com/randalmurphal/casflow/pkg/casflow/registry"
)

// Annotation types and metadata keys written by this package.
const (
	TypeToken    = "token"
	TypeSentence = "sentence"

	MetaTokenCount    = "token_count"
	MetaSourceCAS     = "source_cas"
	MetaSentenceIndex = "sentence_index"
)

// Component type names used in aggregate descriptors.
const (
	WhitespaceTokenizerType = "whitespace-tokenizer"
	SentenceSplitterType    = "sentence-splitter"
	TokenCounterType        = "token-counter"
)

// ErrUnsupportedCAS indicates a CAS that is not a *cas.Document.
var ErrUnsupportedCAS = errors.New("unsupported cas implementation")

func document(c casflow.CAS) (*cas.Document, error) {
	d, ok := c.(*cas.Document)
	if !ok || d == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCAS, c)
	}
	return d, nil
}

// WhitespaceTokenizer adds one annotation per run of non-space characters.
type WhitespaceTokenizer struct {
	// AnnotationType defaults to TypeToken.
	AnnotationType string
}

// Process implements casflow.Component.
func (t WhitespaceTokenizer) Process(ctx casflow.Context, c casflow.CAS) error {
	doc, err := document(c)
	if err != nil {
		return err
	}
	typ := t.AnnotationType
	if typ == "" {
		typ = TypeToken
	}

	text := doc.Text()
	var anns []cas.Annotation
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				anns = append(anns, cas.Annotation{Type: typ, Begin: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		anns = append(anns, cas.Annotation{Type: typ, Begin: start, End: len(text)})
	}

	doc.Annotate(anns...)
	ctx.Logger().Debug("tokenized", "tokens", len(anns))
	return nil
}

// TokenCounter writes the number of token annotations to MetaTokenCount.
type TokenCounter struct {
	// AnnotationType defaults to TypeToken.
	AnnotationType string
}

// Process implements casflow.Component.
func (t TokenCounter) Process(_ casflow.Context, c casflow.CAS) error {
	doc, err := document(c)
	if err != nil {
		return err
	}
	typ := t.AnnotationType
	if typ == "" {
		typ = TypeToken
	}
	doc.SetMeta(MetaTokenCount, strconv.Itoa(len(doc.Annotations(typ))))
	return nil
}

// Register adds the factories of this package to reg.
func Register(reg *registry.Registry) error {
	return errors.Join(
		reg.Register(WhitespaceTokenizerType, func(params config.Config) (casflow.Component, error) {
			return WhitespaceTokenizer{AnnotationType: params.String("annotationType", "")}, nil
		}),
		reg.Register(SentenceSplitterType, func(params config.Config) (casflow.Component, error) {
			minLen := params.Int("minLength", 1)
			if minLen < 1 {
				return nil, fmt.Errorf("minLength must be positive, got %d", minLen)
			}
			return NewSentenceSplitter(WithMinLength(minLen)), nil
		}),
		reg.Register(TokenCounterType, func(params config.Config) (casflow.Component, error) {
			return TokenCounter{AnnotationType: params.String("annotationType", "")}, nil
		}),
	)
}
