// Package pyast parses Python source with Tree-sitter and extracts the
// structural facts cachescope reasons over: classes, functions, decorators,
// call sites, and literal assignments.
package pyast

import "strings"

// ElementType classifies an extracted element.
type ElementType string

const (
	ElementClass    ElementType = "class"
	ElementFunction ElementType = "function"
	ElementMethod   ElementType = "method"
)

// Visibility by Python naming convention.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Decorator is a decorator applied to a class or function.
type Decorator struct {
	Name string // dotted name without arguments, e.g. "cache_page", "method_decorator"
	Raw  string // full source text including arguments, without the leading "@"
	Line int
}

// Element is a class, function, or method extracted from a Python file.
type Element struct {
	Ref        string // repo-anchored, e.g. "py:blog/views.py:ArticleList.get"
	Type       ElementType
	Name       string
	Parent     string // Ref of containing class for methods
	File       string // absolute path
	StartLine  int    // 1-indexed, inclusive; includes decorators
	EndLine    int
	Signature  string
	Body       string
	Decorators []Decorator
	Bases      []string // superclass names for classes
	Async      bool
	Visibility Visibility
}

// Call is a call expression with a resolvable dotted callee.
type Call struct {
	Callee string // dotted path, e.g. "cache.set", "Article.objects.filter"
	Line   int
	Within string // Ref of innermost enclosing element, "" at module level
	// Args holds the dotted name of each positional argument, or "" when
	// the argument is not a plain name chain. len(Args) is the positional
	// argument count.
	Args []string
	// Keywords maps keyword argument names to their dotted-name values,
	// or "" when the value is not a plain name chain.
	Keywords map[string]string
}

// HasKeyword reports whether the call passes the named keyword argument.
func (c Call) HasKeyword(name string) bool {
	_, ok := c.Keywords[name]
	return ok
}

// Segments splits the dotted callee path.
func (c Call) Segments() []string {
	return strings.Split(c.Callee, ".")
}

// Assignment is a `name = value` statement at module or class scope
// whose right-hand side is a call or a literal cachescope understands.
type Assignment struct {
	Target   string
	Within   string // Ref of enclosing class, "" at module level
	Line     int
	CallType string // dotted callee when the value is a call, e.g. "models.CharField"
	NameRef  string // dotted name when the value is a bare name, e.g. "Article"
	Value    Value  // extracted literal when the value is str/list/tuple/dict
}

// ValueKind discriminates Value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueString
	ValueList
	ValueMap
)

// Value is a literal extracted from settings-style assignments:
// a string, a list/tuple of strings, or a nested string-keyed dict.
type Value struct {
	Kind ValueKind
	Str  string
	List []string
	Map  map[string]Value
}

// File is the parse result for one Python source file.
type File struct {
	Path     string // absolute
	RelPath  string // slash-separated, relative to project root
	Elements []Element
	Calls    []Call
	Assigns  []Assignment
}

// MethodsOf returns the methods whose parent is the given class ref.
func (f *File) MethodsOf(classRef string) []Element {
	var out []Element
	for _, e := range f.Elements {
		if e.Type == ElementMethod && e.Parent == classRef {
			out = append(out, e)
		}
	}
	return out
}

// CallsWithin returns calls whose enclosing element ref equals ref or is
// nested under it (method of the class, inner function).
func (f *File) CallsWithin(ref string) []Call {
	var out []Call
	for _, c := range f.Calls {
		if c.Within == ref || strings.HasPrefix(c.Within, ref+".") {
			out = append(out, c)
		}
	}
	return out
}

// ModuleAssign returns the module-level assignment to the given name, or nil.
func (f *File) ModuleAssign(name string) *Assignment {
	for i := range f.Assigns {
		if f.Assigns[i].Within == "" && f.Assigns[i].Target == name {
			return &f.Assigns[i]
		}
	}
	return nil
}

// extractBody joins the source lines for an element range.
func extractBody(lines []string, startLine, endLine int) string {
	if startLine < 1 || endLine < startLine || startLine > len(lines) {
		return ""
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}
