package symbols

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// langConfig maps a grammar's declaration node types to symbol kinds.
type langConfig struct {
	name     string
	language *sitter.Language
	// declKinds maps AST node type to the symbol kind it declares.
	declKinds map[string]Kind
	// containerTypes are node types that name a container for nested symbols
	// (Python methods, class members).
	containerTypes map[string]struct{}
	// identifierTypes are node types that count as references.
	identifierTypes map[string]struct{}
}

var defaultIdentifiers = map[string]struct{}{
	"identifier":                    {},
	"type_identifier":               {},
	"field_identifier":              {},
	"property_identifier":           {},
	"shorthand_property_identifier": {},
}

var languages = map[string]*langConfig{
	"go": {
		name:     "go",
		language: golang.GetLanguage(),
		declKinds: map[string]Kind{
			"function_declaration": KindFunction,
			"method_declaration":   KindMethod,
			"type_declaration":     KindType,
			"const_declaration":    KindConst,
			"var_declaration":      KindVar,
		},
		identifierTypes: defaultIdentifiers,
	},
	"python": {
		name:     "python",
		language: python.GetLanguage(),
		declKinds: map[string]Kind{
			"function_definition": KindFunction,
			"class_definition":    KindClass,
		},
		containerTypes:  map[string]struct{}{"class_definition": {}},
		identifierTypes: defaultIdentifiers,
	},
	"javascript": {
		name:     "javascript",
		language: javascript.GetLanguage(),
		declKinds: map[string]Kind{
			"function_declaration": KindFunction,
			"method_definition":    KindMethod,
			"class_declaration":    KindClass,
		},
		containerTypes:  map[string]struct{}{"class_declaration": {}},
		identifierTypes: defaultIdentifiers,
	},
	"typescript": {
		name:     "typescript",
		language: typescript.GetLanguage(),
		declKinds: map[string]Kind{
			"function_declaration":   KindFunction,
			"method_definition":      KindMethod,
			"class_declaration":      KindClass,
			"interface_declaration":  KindInterface,
			"type_alias_declaration": KindType,
			"enum_declaration":       KindEnum,
		},
		containerTypes:  map[string]struct{}{"class_declaration": {}},
		identifierTypes: defaultIdentifiers,
	},
	"tsx": {
		name:     "tsx",
		language: tsx.GetLanguage(),
		declKinds: map[string]Kind{
			"function_declaration":   KindFunction,
			"method_definition":      KindMethod,
			"class_declaration":      KindClass,
			"interface_declaration":  KindInterface,
			"type_alias_declaration": KindType,
			"enum_declaration":       KindEnum,
		},
		containerTypes:  map[string]struct{}{"class_declaration": {}},
		identifierTypes: defaultIdentifiers,
	},
	"rust": {
		name:     "rust",
		language: rust.GetLanguage(),
		declKinds: map[string]Kind{
			"function_item": KindFunction,
			"struct_item":   KindStruct,
			"enum_item":     KindEnum,
			"trait_item":    KindTrait,
			"mod_item":      KindModule,
			"const_item":    KindConst,
			"static_item":   KindVar,
		},
		identifierTypes: defaultIdentifiers,
	},
	"bash": {
		name:     "bash",
		language: bash.GetLanguage(),
		declKinds: map[string]Kind{
			"function_definition": KindFunction,
		},
		identifierTypes: map[string]struct{}{
			"variable_name": {},
			"word":          {},
		},
	},
}

var extToLang = map[string]string{
	".go":   "go",
	".py":   "python",
	".pyi":  "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".rs":   "rust",
	".sh":   "bash",
	".bash": "bash",
}

// configForPath returns the language config for a file, or nil when the
// language has no grammar wired.
func configForPath(path string) *langConfig {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLang[ext]
	if !ok {
		return nil
	}
	return languages[lang]
}

// Supported reports whether symbol extraction covers the file.
func Supported(path string) bool {
	return configForPath(path) != nil
}
