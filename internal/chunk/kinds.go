package chunk

import (
	"path/filepath"
	"strings"
)

// codeExtensions is the code set: general-purpose plus markup/config source
// extensions. Files here are chunked by line window.
var codeExtensions = map[string]struct{}{
	// General-purpose languages
	".go": {}, ".py": {}, ".pyi": {}, ".js": {}, ".jsx": {}, ".mjs": {},
	".cjs": {}, ".ts": {}, ".tsx": {}, ".rs": {}, ".c": {}, ".h": {},
	".cpp": {}, ".cc": {}, ".cxx": {}, ".hpp": {}, ".hh": {}, ".java": {},
	".kt": {}, ".kts": {}, ".scala": {}, ".rb": {}, ".php": {}, ".cs": {},
	".swift": {}, ".m": {}, ".mm": {}, ".dart": {}, ".lua": {}, ".pl": {},
	".pm": {}, ".r": {}, ".jl": {}, ".ex": {}, ".exs": {}, ".erl": {},
	".hrl": {}, ".clj": {}, ".cljs": {}, ".hs": {}, ".ml": {}, ".mli": {},
	".zig": {}, ".nim": {}, ".v": {}, ".groovy": {},
	// Shell and scripting
	".sh": {}, ".bash": {}, ".zsh": {}, ".fish": {}, ".ps1": {}, ".bat": {},
	// Markup, config, data
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".xml": {},
	".css": {}, ".scss": {}, ".less": {}, ".sql": {}, ".proto": {},
	".graphql": {}, ".tf": {}, ".hcl": {}, ".ini": {}, ".cfg": {},
	".vue": {}, ".svelte": {}, ".cmake": {}, ".mk": {}, ".dockerfile": {},
}

// docExtensions is the prose set. Files here are chunked by token window.
// The code and doc sets are disjoint.
var docExtensions = map[string]struct{}{
	".md": {}, ".markdown": {}, ".txt": {}, ".rst": {},
	".html": {}, ".adoc": {}, ".org": {}, ".tex": {},
}

// KindOf classifies a path by extension. Files in neither set are skipped.
func KindOf(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := codeExtensions[ext]; ok {
		return KindCode
	}
	if _, ok := docExtensions[ext]; ok {
		return KindDoc
	}
	// Extensionless well-known build files index as code.
	base := strings.ToLower(filepath.Base(path))
	switch base {
	case "dockerfile", "makefile", "rakefile", "gemfile":
		return KindCode
	}
	return KindSkip
}
