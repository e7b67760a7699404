package pyast

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cachescope/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser extracts structural facts from Python source files.
// It uses Tree-sitter for accurate AST parsing.
type Parser struct {
	projectRoot string
	parser      *sitter.Parser
}

// NewParser creates a Python parser anchored at the project root.
// The root is used to generate repo-anchored refs.
func NewParser(projectRoot string) *Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Parser{
		projectRoot: projectRoot,
		parser:      parser,
	}
}

// ParseError reports a file that could not be parsed as Python.
// Callers skip the file and continue scanning.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SupportedExtensions returns [".py", ".pyw"].
func (p *Parser) SupportedExtensions() []string {
	return []string{".py", ".pyw"}
}

// Parse extracts elements, calls, and assignments from Python source.
func (p *Parser) Parse(path string, content []byte) (*File, error) {
	start := time.Now()
	logging.ScanDebug("pyast: parsing file: %s", filepath.Base(path))

	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		logging.Get(logging.CategoryScan).Error("pyast: parse failed: %s - %v", path, err)
		return nil, &ParseError{Path: path, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("syntax error")}
	}

	lines := strings.Split(string(content), "\n")
	f := &File{
		Path:    path,
		RelPath: p.relativePath(path),
	}

	p.walkElements(root, f, "", nil, content, lines)
	p.collectCalls(root, f, content)
	p.collectAssignments(root, f, content)

	logging.ScanDebug("pyast: parsed %s - %d elements, %d calls in %v",
		filepath.Base(path), len(f.Elements), len(f.Calls), time.Since(start))
	return f, nil
}

// walkElements recursively walks the AST and extracts Elements.
func (p *Parser) walkElements(
	node *sitter.Node,
	f *File,
	parentRef string,
	decorators []Decorator,
	content []byte,
	lines []string,
) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		switch child.Type() {
		case "class_definition":
			elem := p.parseClassDef(child, f, decorators, content, lines)
			if elem != nil {
				f.Elements = append(f.Elements, *elem)
				body := child.ChildByFieldName("body")
				if body != nil {
					p.walkElements(body, f, elem.Ref, nil, content, lines)
				}
			}

		case "function_definition":
			elem := p.parseFuncDef(child, f, parentRef, decorators, content, lines)
			if elem != nil {
				f.Elements = append(f.Elements, *elem)
			}

		case "decorated_definition":
			decs := p.parseDecorators(child, content)
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			switch def.Type() {
			case "function_definition":
				elem := p.parseFuncDef(def, f, parentRef, decs, content, lines)
				if elem != nil {
					// Extend start line to include decorators
					elem.StartLine = int(child.StartPoint().Row) + 1
					elem.Body = extractBody(lines, elem.StartLine, elem.EndLine)
					f.Elements = append(f.Elements, *elem)
				}
			case "class_definition":
				elem := p.parseClassDef(def, f, decs, content, lines)
				if elem != nil {
					elem.StartLine = int(child.StartPoint().Row) + 1
					elem.Body = extractBody(lines, elem.StartLine, elem.EndLine)
					f.Elements = append(f.Elements, *elem)
					body := def.ChildByFieldName("body")
					if body != nil {
						p.walkElements(body, f, elem.Ref, nil, content, lines)
					}
				}
			}

		default:
			// Recurse into other compound statements (if/try/with at module level)
			p.walkElements(child, f, parentRef, nil, content, lines)
		}
	}
}

// parseDecorators extracts the decorator list from a decorated_definition.
func (p *Parser) parseDecorators(node *sitter.Node, content []byte) []Decorator {
	var decs []Decorator
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "decorator" {
			continue
		}
		raw := strings.TrimPrefix(string(content[child.StartByte():child.EndByte()]), "@")
		name := raw
		if idx := strings.Index(name, "("); idx > 0 {
			name = name[:idx]
		}
		name = strings.TrimSpace(name)
		decs = append(decs, Decorator{
			Name: name,
			Raw:  raw,
			Line: int(child.StartPoint().Row) + 1,
		})
	}
	return decs
}

// parseClassDef parses a Python class definition.
func (p *Parser) parseClassDef(
	node *sitter.Node,
	f *File,
	decorators []Decorator,
	content []byte,
	lines []string,
) *Element {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	var bases []string
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			if base := dottedName(supers.NamedChild(i), content); base != "" {
				bases = append(bases, base)
			}
		}
	}

	signature := ""
	if startLine > 0 && startLine <= len(lines) {
		signature = strings.TrimSpace(lines[startLine-1])
	}

	return &Element{
		Ref:        fmt.Sprintf("py:%s:%s", f.RelPath, name),
		Type:       ElementClass,
		Name:       name,
		File:       f.Path,
		StartLine:  startLine,
		EndLine:    endLine,
		Signature:  signature,
		Body:       extractBody(lines, startLine, endLine),
		Decorators: decorators,
		Bases:      bases,
		Visibility: determineVisibility(name),
	}
}

// parseFuncDef parses a Python function/method definition.
func (p *Parser) parseFuncDef(
	node *sitter.Node,
	f *File,
	parentRef string,
	decorators []Decorator,
	content []byte,
	lines []string,
) *Element {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	elemType := ElementFunction
	var ref string
	if parentRef != "" {
		elemType = ElementMethod
		parts := strings.Split(parentRef, ":")
		parentName := parts[len(parts)-1]
		ref = fmt.Sprintf("py:%s:%s.%s", f.RelPath, parentName, name)
	} else {
		ref = fmt.Sprintf("py:%s:%s", f.RelPath, name)
	}

	signature := ""
	if startLine > 0 && startLine <= len(lines) {
		signature = strings.TrimSpace(lines[startLine-1])
	}

	return &Element{
		Ref:        ref,
		Type:       elemType,
		Name:       name,
		Parent:     parentRef,
		File:       f.Path,
		StartLine:  startLine,
		EndLine:    endLine,
		Signature:  signature,
		Body:       extractBody(lines, startLine, endLine),
		Decorators: decorators,
		Async:      strings.HasPrefix(signature, "async "),
		Visibility: determineVisibility(name),
	}
}

// collectCalls walks the whole tree and records calls with dotted callees.
func (p *Parser) collectCalls(node *sitter.Node, f *File, content []byte) {
	if node.Type() == "call" {
		if fn := node.ChildByFieldName("function"); fn != nil {
			if callee := dottedName(fn, content); callee != "" {
				line := int(node.StartPoint().Row) + 1
				call := Call{
					Callee: callee,
					Line:   line,
					Within: f.enclosingRef(line),
				}
				if args := node.ChildByFieldName("arguments"); args != nil {
					for i := 0; i < int(args.NamedChildCount()); i++ {
						arg := args.NamedChild(i)
						if arg.Type() == "keyword_argument" {
							kw := arg.ChildByFieldName("name")
							if kw == nil {
								continue
							}
							if call.Keywords == nil {
								call.Keywords = make(map[string]string)
							}
							name := string(content[kw.StartByte():kw.EndByte()])
							value := ""
							if v := arg.ChildByFieldName("value"); v != nil {
								value = dottedName(v, content)
							}
							call.Keywords[name] = value
						} else if arg.Type() != "comment" {
							call.Args = append(call.Args, dottedName(arg, content))
						}
					}
				}
				f.Calls = append(f.Calls, call)
			}
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.collectCalls(node.NamedChild(i), f, content)
	}
}

// collectAssignments records `name = value` statements at module and class
// scope. Assignments inside functions are not settings or model fields and
// are skipped.
func (p *Parser) collectAssignments(node *sitter.Node, f *File, content []byte) {
	if node.Type() == "assignment" {
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		if left != nil && right != nil && left.Type() == "identifier" {
			line := int(node.StartPoint().Row) + 1
			within := f.enclosingRef(line)
			if isClassScope(f, within) {
				a := Assignment{
					Target: string(content[left.StartByte():left.EndByte()]),
					Within: within,
					Line:   line,
				}
				switch right.Type() {
				case "call":
					if fn := right.ChildByFieldName("function"); fn != nil {
						a.CallType = dottedName(fn, content)
					}
				case "identifier", "attribute":
					a.NameRef = dottedName(right, content)
				default:
					a.Value = extractValue(right, content)
				}
				f.Assigns = append(f.Assigns, a)
			}
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.collectAssignments(node.NamedChild(i), f, content)
	}
}

// isClassScope reports whether ref is module level ("") or a class element.
func isClassScope(f *File, ref string) bool {
	if ref == "" {
		return true
	}
	for _, e := range f.Elements {
		if e.Ref == ref {
			return e.Type == ElementClass
		}
	}
	return false
}

// enclosingRef returns the ref of the innermost element containing line.
func (f *File) enclosingRef(line int) string {
	best := ""
	bestSpan := -1
	for _, e := range f.Elements {
		if line < e.StartLine || line > e.EndLine {
			continue
		}
		span := e.EndLine - e.StartLine
		if bestSpan == -1 || span < bestSpan {
			best = e.Ref
			bestSpan = span
		}
	}
	return best
}

// dottedName resolves an expression to a dotted path, or "" when the
// expression is not a plain name chain. Chained calls collapse:
// Article.objects.filter(x).exclude(y) resolves the outer callee to
// "Article.objects.filter.exclude".
func dottedName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return string(content[node.StartByte():node.EndByte()])
	case "attribute":
		obj := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		base := dottedName(obj, content)
		if base == "" {
			return ""
		}
		return base + "." + string(content[attr.StartByte():attr.EndByte()])
	case "call":
		if fn := node.ChildByFieldName("function"); fn != nil {
			return dottedName(fn, content)
		}
	}
	return ""
}

// determineVisibility returns visibility based on Python naming conventions.
func determineVisibility(name string) Visibility {
	if strings.HasPrefix(name, "_") {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// relativePath returns the slash path relative to the project root.
func (p *Parser) relativePath(absPath string) string {
	rel, err := filepath.Rel(p.projectRoot, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}
