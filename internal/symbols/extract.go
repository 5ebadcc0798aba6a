package symbols

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// Extract parses source and returns its declared symbols in source order.
// Files in unsupported languages yield an empty slice, not an error.
func Extract(ctx context.Context, path string, source []byte) ([]Symbol, error) {
	cfg := configForPath(path)
	if cfg == nil {
		return nil, nil
	}

	root, err := parse(ctx, cfg, source)
	if err != nil {
		return nil, err
	}

	var out []Symbol
	walk(root, func(node *sitter.Node, container string) string {
		kind, isDecl := cfg.declKinds[node.Type()]
		if !isDecl {
			if _, isContainer := cfg.containerTypes[node.Type()]; isContainer {
				if name := nodeName(node, source); name != "" {
					return name
				}
			}
			return container
		}

		name := nodeName(node, source)
		if name == "" {
			// Go const/var/type blocks declare through nested specs.
			out = append(out, specSymbols(node, source, path, kind, container)...)
			return container
		}

		// A function nested in a container is a method in languages that
		// have no separate method node.
		if kind == KindFunction && container != "" {
			kind = KindMethod
		}

		out = append(out, Symbol{
			Name:      name,
			Kind:      kind,
			Path:      path,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			Container: container,
		})

		if _, isContainer := cfg.containerTypes[node.Type()]; isContainer {
			return name
		}
		return container
	}, "")

	return out, nil
}

// References returns occurrences of name in source, excluding identifiers
// inside comments and string literals (those are not AST identifier nodes,
// so the exclusion falls out of matching node types).
func References(ctx context.Context, path string, source []byte, name string) ([]Reference, error) {
	cfg := configForPath(path)
	if cfg == nil {
		return nil, nil
	}

	root, err := parse(ctx, cfg, source)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(source), "\n")

	var out []Reference
	walk(root, func(node *sitter.Node, _ string) string {
		if _, ok := cfg.identifierTypes[node.Type()]; !ok {
			return ""
		}
		if node.Content(source) != name {
			return ""
		}
		row := int(node.StartPoint().Row)
		text := ""
		if row < len(lines) {
			text = strings.TrimSpace(lines[row])
		}
		out = append(out, Reference{
			Path: path,
			Line: row + 1,
			Col:  int(node.StartPoint().Column) + 1,
			Text: text,
		})
		return ""
	}, "")

	return out, nil
}

func parse(ctx context.Context, cfg *langConfig, source []byte) (*sitter.Node, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(cfg.language)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "parse source", err)
	}
	if tree == nil {
		return nil, apperr.New(apperr.KindInvalid, "parser produced no tree")
	}
	return tree.RootNode(), nil
}

// walk visits every node depth-first. visit returns the container name to
// use for the node's subtree.
func walk(node *sitter.Node, visit func(*sitter.Node, string) string, container string) {
	next := visit(node, container)
	if next == "" {
		next = container
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil {
			walk(child, visit, next)
		}
	}
}

// nodeName reads the "name" field of a declaration.
func nodeName(node *sitter.Node, source []byte) string {
	name := node.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	return name.Content(source)
}

// specSymbols handles grouped declarations (Go's type/const/var blocks):
// each child spec contributes one symbol named by its name field.
func specSymbols(node *sitter.Node, source []byte, path string, kind Kind, container string) []Symbol {
	var out []Symbol
	var collect func(n *sitter.Node)
	collect = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "type_spec", "const_spec", "var_spec":
				if name := nodeName(child, source); name != "" {
					out = append(out, Symbol{
						Name:      name,
						Kind:      kind,
						Path:      path,
						StartLine: int(child.StartPoint().Row) + 1,
						EndLine:   int(child.EndPoint().Row) + 1,
						Container: container,
					})
				}
			case "spec_list":
				collect(child)
			}
		}
	}
	collect(node)
	return out
}
