package mapping

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	bmapping "github.com/blevesearch/bleve/v2/mapping"
	"github.com/solatis/intervalq/internal/types"
)

// Built-in analyzer names.
const (
	SimpleAnalyzer     = simple.Name
	StandardAnalyzer   = standard.Name
	KeywordAnalyzer    = keyword.Name
	WhitespaceAnalyzer = "whitespace"
	EnglishAnalyzer    = en.AnalyzerName
)

// Analyzers resolves analyzer names to bleve analysis chains. It is safe
// for concurrent use.
type Analyzers struct {
	im *bmapping.IndexMappingImpl

	mu    sync.Mutex
	cache map[string]*Analyzer
}

// NewAnalyzers creates a registry on top of im's analysis configuration,
// or a fresh bleve index mapping when im is nil. A whitespace analyzer
// (whitespace tokenizer, no filters) is registered unless im defines one.
func NewAnalyzers(im *bmapping.IndexMappingImpl) (*Analyzers, error) {
	if im == nil {
		im = bmapping.NewIndexMapping()
	}
	if im.AnalyzerNamed(WhitespaceAnalyzer) == nil {
		err := im.AddCustomAnalyzer(WhitespaceAnalyzer, map[string]interface{}{
			"type":      custom.Name,
			"tokenizer": whitespace.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register whitespace analyzer: %w", err)
		}
	}
	return &Analyzers{im: im, cache: make(map[string]*Analyzer)}, nil
}

// Get returns the named analyzer.
func (a *Analyzers) Get(name string) (*Analyzer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if an, ok := a.cache[name]; ok {
		return an, nil
	}

	var impl analysis.Analyzer
	if name == StandardAnalyzer && !a.customDefined(name) {
		impl = standardChain()
	} else {
		impl = a.im.AnalyzerNamed(name)
	}
	if impl == nil {
		return nil, fmt.Errorf("%w: [%s]", types.ErrUnknownAnalyzer, name)
	}
	an := &Analyzer{Name: name, analyze: impl.Analyze}
	an.foldsCase = foldsCase(an)
	a.cache[name] = an
	return an, nil
}

// customDefined reports whether the index mapping declares its own
// analyzer called name.
func (a *Analyzers) customDefined(name string) bool {
	if a.im.CustomAnalysis == nil {
		return false
	}
	_, ok := a.im.CustomAnalysis.Analyzers[name]
	return ok
}

// standardChain is the Elasticsearch standard analyzer: unicode word
// segmentation and lowercasing. Unlike bleve's standard it keeps stop words.
func standardChain() analysis.Analyzer {
	return &analysis.DefaultAnalyzer{
		Tokenizer:    unicode.NewUnicodeTokenizer(),
		TokenFilters: []analysis.TokenFilter{lowercase.NewLowerCaseFilter()},
	}
}

// Token is one analyzed term. Position is 1-based and counts the tokens
// a filter removed, so stop words leave gaps.
type Token struct {
	Term     string
	Position int
}

// Analyzer is one analysis chain.
type Analyzer struct {
	Name      string
	analyze   func([]byte) analysis.TokenStream
	foldsCase bool
}

// Analyze returns the tokens of text in position order.
func (a *Analyzer) Analyze(text string) []Token {
	stream := a.analyze([]byte(text))
	tokens := make([]Token, 0, len(stream))
	for _, tok := range stream {
		tokens = append(tokens, Token{Term: string(tok.Term), Position: tok.Position})
	}
	return tokens
}

// Tokenize returns the terms of text in position order.
func (a *Analyzer) Tokenize(text string) []string {
	tokens := a.Analyze(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Normalize applies the chain's term normalization to a single term
// without tokenizing it, so wildcard and prefix syntax survive.
func (a *Analyzer) Normalize(term string) string {
	if a.foldsCase {
		return strings.ToLower(term)
	}
	return term
}

// FoldsCase reports whether the chain lowercases terms.
func (a *Analyzer) FoldsCase() bool {
	return a.foldsCase
}

// foldsCase runs a mixed-case token through the chain.
func foldsCase(a *Analyzer) bool {
	terms := a.Tokenize("Qz")
	return len(terms) == 1 && terms[0] == "qz"
}
