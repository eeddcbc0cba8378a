// File: internal/jsconst/jsconst.go
// Resolves named string constants from JavaScript configuration files. The
// primary use is digging the remote browser endpoint out of a sibling
// project's constants.js.
package jsconst

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// ErrConstNotFound is returned when the file parses but the named constant
// is not bound to a string literal anywhere in it.
var ErrConstNotFound = errors.New("constant not found")

// LookupString reads a JavaScript file and returns the string value bound to
// the named constant. It first parses the file with the tree-sitter
// JavaScript grammar, which handles declarations and export objects alike; a
// regex scan covers files the grammar cannot make sense of.
func LookupString(path, name string) (string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading constants file: %w", err)
	}

	if value, err := parseDeclarations(source, name); err == nil {
		return value, nil
	}

	value, err := regexScan(source, name)
	if err != nil {
		return "", fmt.Errorf("constant %q not found in %s: %w", name, path, err)
	}
	return value, nil
}

// parseDeclarations walks the AST looking for the constant in two shapes:
// `const NAME = "..."` (any declaration kind) and `NAME: "..."` inside an
// object, which covers module.exports blocks.
func parseDeclarations(source []byte, name string) (string, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	var found string
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil || found != "" {
			return
		}

		switch node.Type() {
		case "variable_declarator":
			id := node.ChildByFieldName("name")
			value := node.ChildByFieldName("value")
			if id != nil && value != nil && id.Content(source) == name {
				if s, ok := stringValue(value, source); ok {
					found = s
					return
				}
			}
		case "pair":
			key := node.ChildByFieldName("key")
			value := node.ChildByFieldName("value")
			if key != nil && value != nil && pairKey(key, source) == name {
				if s, ok := stringValue(value, source); ok {
					found = s
					return
				}
			}
		}

		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(tree.RootNode())

	if found == "" {
		return "", ErrConstNotFound
	}
	return found, nil
}

// stringValue unwraps a string or template_string literal node.
func stringValue(node *sitter.Node, source []byte) (string, bool) {
	switch node.Type() {
	case "string", "template_string":
		raw := node.Content(source)
		if len(raw) >= 2 {
			return raw[1 : len(raw)-1], true
		}
	}
	return "", false
}

// pairKey normalizes an object key node, stripping quotes when the key is a
// string literal.
func pairKey(node *sitter.Node, source []byte) string {
	content := node.Content(source)
	if node.Type() == "string" {
		return strings.Trim(content, `'"`)
	}
	return content
}

// regexScan is the fallback for files the grammar rejects. It only matches
// single-line declarations with plain quoted values.
func regexScan(source []byte, name string) (string, error) {
	re := regexp.MustCompile(`(?m)(?:const|let|var)\s+` + regexp.QuoteMeta(name) + `\s*=\s*['"]([^'"]+)['"]`)
	if m := re.FindSubmatch(source); m != nil {
		return string(m[1]), nil
	}
	return "", ErrConstNotFound
}
