package project

import (
	"sort"
	"strings"

	"cachescope/internal/pyast"
)

// ORM queryset methods, split by whether they read or mutate rows.
var ormReadMethods = map[string]bool{
	"filter": true, "get": true, "all": true, "exclude": true,
	"annotate": true, "aggregate": true, "values": true, "values_list": true,
	"select_related": true, "prefetch_related": true, "only": true,
	"defer": true, "order_by": true, "count": true, "exists": true,
	"first": true, "last": true, "latest": true, "earliest": true,
	"in_bulk": true, "raw": true, "union": true, "distinct": true,
}

var ormWriteMethods = map[string]bool{
	"create": true, "get_or_create": true, "update_or_create": true,
	"bulk_create": true, "bulk_update": true, "update": true, "delete": true,
}

// relationFieldTypes are the model field types classified as relationships.
var relationFieldTypes = map[string]bool{
	"ForeignKey": true, "OneToOneField": true, "ManyToManyField": true,
}

// classifyORM inspects a call chain for manager access.
// Returns the model name (when resolvable), whether the chain mutates rows,
// and whether it is an ORM call at all.
func classifyORM(c pyast.Call) (model string, write bool, ok bool) {
	segs := c.Segments()
	objIdx := -1
	for i, s := range segs {
		if s == "objects" {
			objIdx = i
			break
		}
	}
	if objIdx < 0 {
		return "", false, false
	}
	if objIdx > 0 {
		prev := segs[objIdx-1]
		// Manager access through a class name; self.model.objects etc.
		// stays anonymous.
		if prev != "" && prev[0] >= 'A' && prev[0] <= 'Z' {
			model = prev
		}
	}
	for _, s := range segs[objIdx+1:] {
		if ormWriteMethods[s] {
			return model, true, true
		}
		if ormReadMethods[s] {
			ok = true
		}
	}
	return model, false, ok
}

// isCacheCall reports whether the call goes through Django's cache API.
func isCacheCall(c pyast.Call) bool {
	segs := c.Segments()
	return segs[0] == "cache" || segs[0] == "caches"
}

// isInvalidationCall reports whether the call evicts cached data.
func isInvalidationCall(c pyast.Call) bool {
	segs := c.Segments()
	if segs[0] != "cache" && segs[0] != "caches" {
		return false
	}
	switch segs[len(segs)-1] {
	case "delete", "delete_many", "delete_pattern", "clear":
		return true
	}
	return false
}

// hasCacheDecorator reports whether any decorator applies response caching.
// method_decorator(cache_page(...)) on class-based views counts, as does
// cache_control, which marks the response cacheable downstream.
func hasCacheDecorator(decs []pyast.Decorator) bool {
	for _, d := range decs {
		if d.Name == "cache_page" || d.Name == "cache_control" ||
			strings.Contains(d.Raw, "cache_page") || strings.Contains(d.Raw, "cache_control") {
			return true
		}
	}
	return false
}

// hasNeverCache reports an explicit opt-out from caching.
func hasNeverCache(decs []pyast.Decorator) bool {
	for _, d := range decs {
		if d.Name == "never_cache" || strings.Contains(d.Raw, "never_cache") {
			return true
		}
	}
	return false
}

// CachedByDecorator reports whether the view has response caching applied
// via decorators (cache_page directly or through method_decorator).
func (v View) CachedByDecorator() bool {
	return hasCacheDecorator(v.Decorators)
}

// CacheExempt reports an explicit never_cache opt-out.
func (v View) CacheExempt() bool {
	return hasNeverCache(v.Decorators)
}

// UsesCache reports low-level cache API usage other than pure invalidation.
func (v View) UsesCache() bool {
	for _, c := range v.CacheCalls {
		if !isInvalidationCall(c) {
			return true
		}
	}
	return false
}

// Cached reports whether the view's responses or queries are cached in any
// detectable way.
func (v View) Cached() bool {
	return v.CachedByDecorator() || v.UsesCache()
}

// classifyModels extracts Django models from a parsed models module.
func classifyModels(f *pyast.File, app string) []Model {
	var models []Model
	for _, e := range f.Elements {
		if e.Type != pyast.ElementClass {
			continue
		}
		if !isModelClass(e.Bases) {
			continue
		}

		m := Model{
			Name: e.Name,
			App:  app,
			File: f.RelPath,
			Ref:  e.Ref,
			Line: e.StartLine,
			// Meta options are not literal-extractable (True is a keyword,
			// not a string), so abstract detection scans the class body.
			Abstract: strings.Contains(e.Body, "abstract = True") ||
				strings.Contains(e.Body, "abstract=True"),
		}

		for _, a := range f.Assigns {
			if a.Within != e.Ref || a.CallType == "" {
				continue
			}
			typ := lastSegment(a.CallType)
			field := Field{Name: a.Target, Type: typ}
			if relationFieldTypes[typ] {
				m.Relations = append(m.Relations, field)
			} else {
				m.Fields = append(m.Fields, field)
			}
		}

		for _, method := range f.MethodsOf(e.Ref) {
			if method.Name != "save" {
				continue
			}
			m.HasSaveOverride = true
			for _, c := range f.CallsWithin(method.Ref) {
				if isInvalidationCall(c) {
					m.SaveInvalidates = true
					break
				}
			}
		}

		models = append(models, m)
	}
	return models
}

func isModelClass(bases []string) bool {
	for _, b := range bases {
		if strings.Contains(b, "ModelForm") {
			return false
		}
		if strings.Contains(b, "Model") {
			return true
		}
	}
	return false
}

// classifyViews extracts views from a parsed views module.
func classifyViews(f *pyast.File, app string) []View {
	var views []View
	for _, e := range f.Elements {
		var v View
		switch {
		case e.Type == pyast.ElementFunction && e.Visibility == pyast.VisibilityPublic:
			v = View{
				Name:       e.Name,
				Kind:       ViewFunction,
				Async:      e.Async,
				Decorators: e.Decorators,
			}
		case e.Type == pyast.ElementClass && isViewClass(e.Bases):
			v = View{
				Name:       e.Name,
				Kind:       classKind(e.Bases),
				Bases:      e.Bases,
				Decorators: collectClassDecorators(f, e),
			}
		default:
			continue
		}

		v.App = app
		v.File = f.RelPath
		v.Ref = e.Ref
		v.Line = e.StartLine

		seen := make(map[string]bool)
		for _, c := range f.CallsWithin(e.Ref) {
			if model, write, ok := classifyORM(c); ok {
				if write {
					v.ORMWrites = append(v.ORMWrites, c)
				} else {
					v.ORMReads = append(v.ORMReads, c)
				}
				if model != "" && !seen[model] {
					seen[model] = true
					v.Models = append(v.Models, model)
				}
			} else if isCacheCall(c) {
				v.CacheCalls = append(v.CacheCalls, c)
			}
		}
		sort.Strings(v.Models)

		views = append(views, v)
	}
	return views
}

func isViewClass(bases []string) bool {
	for _, b := range bases {
		if strings.Contains(b, "View") {
			return true
		}
	}
	return false
}

func classKind(bases []string) ViewKind {
	for _, b := range bases {
		if strings.Contains(strings.ToLower(b), "generic") {
			return ViewGeneric
		}
	}
	return ViewClass
}

// collectClassDecorators gathers decorators from the class and its methods,
// so method_decorator(cache_page(...), name="get") and per-method caching
// are both visible from the view record.
func collectClassDecorators(f *pyast.File, class pyast.Element) []pyast.Decorator {
	decs := append([]pyast.Decorator(nil), class.Decorators...)
	for _, m := range f.MethodsOf(class.Ref) {
		decs = append(decs, m.Decorators...)
	}
	return decs
}

// classifyForms extracts Django forms from a parsed forms module.
func classifyForms(f *pyast.File, app string) []Form {
	var forms []Form
	for _, e := range f.Elements {
		if e.Type != pyast.ElementClass {
			continue
		}
		kind := formKind(e.Bases)
		if kind == "" {
			continue
		}
		form := Form{
			Name: e.Name,
			App:  app,
			File: f.RelPath,
			Ref:  e.Ref,
			Kind: kind,
		}
		if kind == "ModelForm" {
			// Nested Meta refs collide across classes in one file, so the
			// model binding resolves by line range instead.
			for _, a := range f.Assigns {
				if a.Target == "model" && a.NameRef != "" &&
					a.Line >= e.StartLine && a.Line <= e.EndLine {
					form.Model = lastSegment(a.NameRef)
				}
			}
		}
		forms = append(forms, form)
	}
	return forms
}

func formKind(bases []string) string {
	for _, b := range bases {
		if strings.Contains(b, "ModelForm") {
			return "ModelForm"
		}
	}
	for _, b := range bases {
		if strings.Contains(b, "Form") {
			return "Form"
		}
	}
	return ""
}

// invalidationSignals are the signals that can carry cache invalidation.
var invalidationSignals = map[string]bool{
	"post_save":   true,
	"post_delete": true,
	"pre_save":    true,
	"pre_delete":  true,
	"m2m_changed": true,
}

// classifyReceivers finds signal receivers in any parsed file, in both the
// @receiver(post_save, sender=Model) and post_save.connect(handler) forms.
func classifyReceivers(f *pyast.File, app string) []Receiver {
	var receivers []Receiver

	// Decorator form
	for _, e := range f.Elements {
		if e.Type != pyast.ElementFunction && e.Type != pyast.ElementMethod {
			continue
		}
		for _, c := range f.CallsWithin(e.Ref) {
			if lastSegment(c.Callee) != "receiver" || len(c.Args) == 0 {
				continue
			}
			sig := lastSegment(c.Args[0])
			if !invalidationSignals[sig] {
				continue
			}
			receivers = append(receivers, Receiver{
				App:         app,
				File:        f.RelPath,
				Ref:         e.Ref,
				Signal:      sig,
				Sender:      lastSegment(c.Keywords["sender"]),
				Invalidates: bodyInvalidates(f, e.Ref),
			})
			break
		}
	}

	// connect() form
	for _, c := range f.Calls {
		segs := c.Segments()
		if len(segs) < 2 || segs[len(segs)-1] != "connect" {
			continue
		}
		sig := segs[len(segs)-2]
		if !invalidationSignals[sig] || len(c.Args) == 0 {
			continue
		}
		handler := lastSegment(c.Args[0])
		r := Receiver{
			App:    app,
			File:   f.RelPath,
			Signal: sig,
			Sender: lastSegment(c.Keywords["sender"]),
		}
		for _, e := range f.Elements {
			if e.Name == handler &&
				(e.Type == pyast.ElementFunction || e.Type == pyast.ElementMethod) {
				r.Ref = e.Ref
				r.Invalidates = bodyInvalidates(f, e.Ref)
				break
			}
		}
		receivers = append(receivers, r)
	}

	return receivers
}

func bodyInvalidates(f *pyast.File, ref string) bool {
	for _, c := range f.CallsWithin(ref) {
		if isInvalidationCall(c) {
			return true
		}
	}
	return false
}

// countURLPatterns counts path()/re_path()/url() registrations.
func countURLPatterns(f *pyast.File) int {
	n := 0
	for _, c := range f.Calls {
		switch c.Callee {
		case "path", "re_path", "url":
			n++
		}
	}
	return n
}

func lastSegment(dotted string) string {
	if dotted == "" {
		return ""
	}
	idx := strings.LastIndexByte(dotted, '.')
	return dotted[idx+1:]
}
