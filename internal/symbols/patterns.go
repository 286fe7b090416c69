package symbols

import "regexp"

// pattern pairs a symbol type with a compiled regex whose first capture
// group is the symbol name. Patterns are compiled once at package init.
type pattern struct {
	symbolType string
	re         *regexp.Regexp
}

// languagePatterns maps normalized language identifiers to their ordered
// pattern tables.
var languagePatterns = map[string][]pattern{
	"csharp": {
		{"class", regexp.MustCompile(`(?m)\bclass\s+(\w+)`)},
		{"interface", regexp.MustCompile(`(?m)\binterface\s+(\w+)`)},
		{"struct", regexp.MustCompile(`(?m)\bstruct\s+(\w+)`)},
		{"enum", regexp.MustCompile(`(?m)\benum\s+(\w+)`)},
		{"method", regexp.MustCompile(`(?m)(?:public|private|protected|internal|static)[\w\s]*\s+(\w+)\s*\(`)},
		{"namespace", regexp.MustCompile(`(?m)\bnamespace\s+([\w.]+)`)},
		{"property", regexp.MustCompile(`(?m)\b(\w+)\s*\{\s*get\b`)},
	},
	"javascript": {
		{"function", regexp.MustCompile(`(?m)\bfunction\s+(\w+)`)},
		{"class", regexp.MustCompile(`(?m)\bclass\s+(\w+)`)},
		{"const", regexp.MustCompile(`(?m)\bconst\s+(\w+)\s*=`)},
		{"let", regexp.MustCompile(`(?m)\blet\s+(\w+)\s*=`)},
		{"method", regexp.MustCompile(`(?m)^\s*(\w+)\s*\([^)]*\)\s*\{`)},
	},
	"typescript": {
		{"function", regexp.MustCompile(`(?m)\bfunction\s+(\w+)`)},
		{"class", regexp.MustCompile(`(?m)\bclass\s+(\w+)`)},
		{"interface", regexp.MustCompile(`(?m)\binterface\s+(\w+)`)},
		{"type", regexp.MustCompile(`(?m)\btype\s+(\w+)\s*=`)},
		{"enum", regexp.MustCompile(`(?m)\benum\s+(\w+)`)},
		{"const", regexp.MustCompile(`(?m)\bconst\s+(\w+)\s*[:=]`)},
	},
	"python": {
		{"function", regexp.MustCompile(`(?m)^\s*def\s+(\w+)`)},
		{"class", regexp.MustCompile(`(?m)^\s*class\s+(\w+)`)},
		{"constant", regexp.MustCompile(`(?m)^([A-Z][A-Z0-9_]+)\s*=`)},
	},
	"java": {
		{"class", regexp.MustCompile(`(?m)\bclass\s+(\w+)`)},
		{"interface", regexp.MustCompile(`(?m)\binterface\s+(\w+)`)},
		{"enum", regexp.MustCompile(`(?m)\benum\s+(\w+)`)},
		{"method", regexp.MustCompile(`(?m)(?:public|protected|private|static)[\w\s<>\[\]]*\s+(\w+)\s*\(`)},
		{"package", regexp.MustCompile(`(?m)^package\s+([\w.]+)`)},
	},
	"go": {
		{"function", regexp.MustCompile(`(?m)^func\s+(\w+)`)},
		{"method", regexp.MustCompile(`(?m)^func\s+\([^)]+\)\s+(\w+)`)},
		{"struct", regexp.MustCompile(`(?m)\btype\s+(\w+)\s+struct\b`)},
		{"interface", regexp.MustCompile(`(?m)\btype\s+(\w+)\s+interface\b`)},
		{"const", regexp.MustCompile(`(?m)^\s*const\s+(\w+)`)},
		{"package", regexp.MustCompile(`(?m)^package\s+(\w+)`)},
	},
	"rust": {
		{"function", regexp.MustCompile(`(?m)\bfn\s+(\w+)`)},
		{"struct", regexp.MustCompile(`(?m)\bstruct\s+(\w+)`)},
		{"enum", regexp.MustCompile(`(?m)\benum\s+(\w+)`)},
		{"trait", regexp.MustCompile(`(?m)\btrait\s+(\w+)`)},
		{"module", regexp.MustCompile(`(?m)\bmod\s+(\w+)`)},
		{"impl", regexp.MustCompile(`(?m)\bimpl(?:<[^>]*>)?\s+(\w+)`)},
	},
	"cpp": {
		{"class", regexp.MustCompile(`(?m)\bclass\s+(\w+)`)},
		{"struct", regexp.MustCompile(`(?m)\bstruct\s+(\w+)`)},
		{"enum", regexp.MustCompile(`(?m)\benum\s+(?:class\s+)?(\w+)`)},
		{"function", regexp.MustCompile(`(?m)^\s*[\w:<>~&*]+\s+(\w+)\s*\([^;]*\)\s*\{`)},
		{"namespace", regexp.MustCompile(`(?m)\bnamespace\s+(\w+)`)},
		{"define", regexp.MustCompile(`(?m)^#define\s+(\w+)`)},
	},
}

// crossLanguagePatterns are applied to every file in addition to the
// language-specific table.
var crossLanguagePatterns = []pattern{
	{"todo", regexp.MustCompile(`(?i)\b(?:TODO|FIXME)\b[:\s]*(\w+)`)},
	{"import", regexp.MustCompile(`(?m)^\s*(?:import|from|using|#include|require)\s+[<"']?([\w./]+)`)},
}

// genericIdentifier tokenizes candidate identifiers for the fallback
// extractor used when a language has no registered pattern table.
var genericIdentifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)

// validName is the identifier shape every symbol name must match.
var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// languageAliases maps common alternates onto pattern table keys.
var languageAliases = map[string]string{
	"cs":     "csharp",
	"c#":     "csharp",
	"js":     "javascript",
	"jsx":    "javascript",
	"ts":     "typescript",
	"tsx":    "typescript",
	"py":     "python",
	"golang": "go",
	"rs":     "rust",
	"c":      "cpp",
	"c++":    "cpp",
	"cc":     "cpp",
	"h":      "cpp",
	"hpp":    "cpp",
}
