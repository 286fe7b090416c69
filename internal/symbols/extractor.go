// Package symbols extracts typed code symbols from source text using
// per-language regex pattern tables.
package symbols

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Token is a typed symbol extracted from source content.
type Token struct {
	// Type categorizes the symbol: class, function, method, interface, ...
	Type string `json:"type"`

	// Name is the symbol identifier. Always matches ^[A-Za-z_][A-Za-z0-9_]*$
	// with length in [2,100] and is never a common language keyword.
	Name string `json:"name"`
}

// String renders the token as "type:name", the form stored in the index.
func (t Token) String() string {
	return t.Type + ":" + t.Name
}

// Name length bounds for valid symbols.
const (
	minNameLength = 2
	maxNameLength = 100
)

// defaultMatchTimeout bounds a single pattern application.
const defaultMatchTimeout = 5 * time.Second

// minFallbackOccurrences is the occurrence threshold for the generic
// identifier extractor.
const minFallbackOccurrences = 2

// Extractor extracts symbols from source content.
type Extractor struct {
	matchTimeout time.Duration
	logger       *zap.Logger
}

// NewExtractor creates a symbol extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		matchTimeout: defaultMatchTimeout,
		logger:       logger,
	}
}

// Extract returns the deduplicated, sorted symbol tokens found in content.
//
// Language-specific patterns run first, then the cross-language set. A
// language without a registered table falls back to the generic identifier
// extractor. A pattern that exceeds the match timeout contributes no symbols
// but does not fail the extraction.
func (e *Extractor) Extract(content, language string) []Token {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	seen := make(map[Token]struct{})

	patterns, supported := languagePatterns[normalizeLanguage(language)]
	if supported {
		for _, p := range patterns {
			e.applyPattern(content, p, seen)
		}
	} else {
		e.extractGeneric(content, seen)
	}

	for _, p := range crossLanguagePatterns {
		e.applyPattern(content, p, seen)
	}

	tokens := make([]Token, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Type != tokens[j].Type {
			return tokens[i].Type < tokens[j].Type
		}
		return tokens[i].Name < tokens[j].Name
	})
	return tokens
}

// applyPattern runs one pattern under the match timeout and folds valid
// names into the result set.
func (e *Extractor) applyPattern(content string, p pattern, seen map[Token]struct{}) {
	matches, ok := e.matchWithTimeout(content, p)
	if !ok {
		e.logger.Warn("symbol pattern timed out",
			zap.String("symbol_type", p.symbolType),
			zap.Duration("timeout", e.matchTimeout))
		return
	}

	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		name := strings.TrimSpace(match[1])
		// Import paths may carry separators; keep the last segment.
		if i := strings.LastIndexAny(name, "./"); i >= 0 {
			name = name[i+1:]
		}
		if !IsValidSymbolName(name) {
			continue
		}
		seen[Token{Type: p.symbolType, Name: name}] = struct{}{}
	}
}

// matchWithTimeout applies a pattern, abandoning the result if it does not
// complete within the match timeout.
func (e *Extractor) matchWithTimeout(content string, p pattern) ([][]string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), e.matchTimeout)
	defer cancel()

	done := make(chan [][]string, 1)
	go func() {
		done <- p.re.FindAllStringSubmatch(content, -1)
	}()

	select {
	case matches := <-done:
		return matches, true
	case <-ctx.Done():
		return nil, false
	}
}

// extractGeneric tokenizes identifiers and keeps those appearing at least
// twice, a heuristic signal that the identifier is significant.
func (e *Extractor) extractGeneric(content string, seen map[Token]struct{}) {
	counts := make(map[string]int)
	for _, ident := range genericIdentifier.FindAllString(content, -1) {
		counts[ident]++
	}
	for ident, n := range counts {
		if n < minFallbackOccurrences {
			continue
		}
		if !IsValidSymbolName(ident) {
			continue
		}
		seen[Token{Type: "identifier", Name: ident}] = struct{}{}
	}
}

// IsValidSymbolName reports whether name is a plausible symbol: identifier
// shape, length within bounds, and not a common language keyword.
func IsValidSymbolName(name string) bool {
	if len(name) < minNameLength || len(name) > maxNameLength {
		return false
	}
	if !validName.MatchString(name) {
		return false
	}
	if _, isKeyword := commonKeywords[strings.ToLower(name)]; isKeyword {
		return false
	}
	return true
}

// IsLanguageSupported reports whether a language has a registered pattern set.
func IsLanguageSupported(language string) bool {
	_, ok := languagePatterns[normalizeLanguage(language)]
	return ok
}

// SupportedLanguages returns the sorted list of languages with pattern sets.
func SupportedLanguages() []string {
	langs := make([]string, 0, len(languagePatterns))
	for lang := range languagePatterns {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func normalizeLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[lang]; ok {
		return alias
	}
	return lang
}
