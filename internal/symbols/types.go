// Package symbols extracts code symbols and references with tree-sitter.
// Extraction is on-demand with a sqlite cache keyed by file fingerprint, so
// repeated symbol queries do not reparse unchanged files.
package symbols

// Kind classifies a symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindConst     Kind = "const"
	KindVar       Kind = "var"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTrait     Kind = "trait"
	KindModule    Kind = "module"
)

// Symbol is one named declaration.
type Symbol struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Path      string `json:"path"`
	StartLine int    `json:"startLine"` // 1-indexed
	EndLine   int    `json:"endLine"`
	Container string `json:"container,omitempty"` // enclosing class/type, if any
}

// Reference is one identifier occurrence outside comments and strings.
type Reference struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
	Text string `json:"text"` // the source line, trimmed
}
