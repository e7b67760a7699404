package pyast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractValue pulls string, list-of-string, and dict literals out of an
// expression node. Anything else yields a ValueNone. This is all the
// settings surface the analyzer needs: INSTALLED_APPS, MIDDLEWARE,
// DATABASES, and CACHES are strings, string sequences, and nested dicts.
func extractValue(node *sitter.Node, content []byte) Value {
	switch node.Type() {
	case "string", "concatenated_string":
		return Value{Kind: ValueString, Str: stringLiteral(node, content)}

	case "list", "tuple", "set":
		v := Value{Kind: ValueList}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "string" || child.Type() == "concatenated_string" {
				v.List = append(v.List, stringLiteral(child, content))
			}
		}
		return v

	case "dictionary":
		v := Value{Kind: ValueMap, Map: make(map[string]Value)}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			pair := node.NamedChild(i)
			if pair.Type() != "pair" {
				continue
			}
			key := pair.ChildByFieldName("key")
			val := pair.ChildByFieldName("value")
			if key == nil || val == nil {
				continue
			}
			if key.Type() != "string" && key.Type() != "concatenated_string" {
				continue
			}
			v.Map[stringLiteral(key, content)] = extractValue(val, content)
		}
		return v
	}
	return Value{Kind: ValueNone}
}

// stringLiteral returns the unquoted text of a string node. Prefix letters
// (r, b, f, u) and triple quotes are stripped; escape sequences are left
// as-is, which is fine for dotted-path settings values.
func stringLiteral(node *sitter.Node, content []byte) string {
	raw := string(content[node.StartByte():node.EndByte()])
	if node.Type() == "concatenated_string" {
		var parts []string
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "string" {
				parts = append(parts, stringLiteral(child, content))
			}
		}
		return strings.Join(parts, "")
	}
	return stripPyString(raw)
}

func stripPyString(raw string) string {
	s := raw
	// String prefix: r'', b"", f'', rb'' etc.
	for len(s) > 0 {
		c := s[0] | 0x20 // lowercase
		if c == 'r' || c == 'b' || c == 'f' || c == 'u' {
			s = s[1:]
			continue
		}
		break
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
