package symbols

// commonKeywords are language keywords excluded from symbol names. The set
// spans the supported languages; a keyword in any of them is rejected.
var commonKeywords = map[string]struct{}{}

func init() {
	for _, kw := range []string{
		// Shared / C-family
		"if", "else", "for", "while", "do", "switch", "case", "default",
		"break", "continue", "return", "new", "delete", "this", "null",
		"true", "false", "void", "int", "long", "short", "float", "double",
		"char", "bool", "byte", "string", "static", "const", "public",
		"private", "protected", "class", "struct", "enum", "interface",
		"namespace", "using", "try", "catch", "finally", "throw", "throws",
		// C#
		"var", "async", "await", "foreach", "readonly", "sealed", "virtual",
		"override", "internal", "partial", "get", "set", "out", "ref",
		// JavaScript / TypeScript
		"function", "let", "typeof", "instanceof", "undefined", "export",
		"import", "extends", "implements", "yield", "type",
		// Python
		"def", "lambda", "pass", "elif", "del", "with", "global", "nonlocal",
		"assert", "raise", "except", "from", "none", "and", "not",
		// Java
		"abstract", "final", "synchronized", "transient", "volatile",
		"instanceof", "extends", "package", "super", "boolean",
		// Go
		"func", "chan", "defer", "fallthrough", "goto", "map", "range",
		"select", "go", "nil",
		// Rust
		"fn", "impl", "trait", "mut", "match", "loop", "mod", "pub", "use",
		"crate", "self", "dyn", "where",
	} {
		commonKeywords[kw] = struct{}{}
	}
}
