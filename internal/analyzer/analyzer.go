// Package analyzer evaluates cache-usage rules over a project inventory.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"cachescope/internal/findings"
	"cachescope/internal/logging"
	"cachescope/internal/project"
)

// Rule codes. Each rule can be disabled individually via config.
const (
	RuleUncachedView        = "uncached-view"
	RuleViewWriteCached     = "view-write-cached"
	RuleMissingInvalidation = "missing-invalidation"
	RuleUnversionedSet      = "unversioned-cache-set"
	RuleNoCacheBackend      = "no-cache-backend"
)

// Options configures which rules run.
type Options struct {
	// Rules maps rule code to enabled. Codes absent from the map run.
	Rules map[string]bool
}

// Analyzer evaluates rules over an Inventory.
type Analyzer struct {
	opts Options
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

func (a *Analyzer) enabled(code string) bool {
	if a.opts.Rules == nil {
		return true
	}
	on, present := a.opts.Rules[code]
	return !present || on
}

// Analyze runs every enabled rule and returns deterministically ordered,
// deduplicated findings.
func (a *Analyzer) Analyze(inv *project.Inventory) []findings.Finding {
	timer := logging.StartTimer(logging.CategoryAnalyze, "Analyze")
	defer timer.Stop()

	var fs []findings.Finding
	if a.enabled(RuleUncachedView) {
		fs = append(fs, a.uncachedViews(inv)...)
	}
	if a.enabled(RuleViewWriteCached) {
		fs = append(fs, a.cachedViewWrites(inv)...)
	}
	if a.enabled(RuleMissingInvalidation) {
		fs = append(fs, a.missingInvalidation(inv)...)
	}
	if a.enabled(RuleUnversionedSet) {
		fs = append(fs, a.unversionedSets(inv)...)
	}
	if a.enabled(RuleNoCacheBackend) {
		fs = append(fs, a.noCacheBackend(inv)...)
	}

	fs = dedupe(fs)
	findings.Sort(fs)
	logging.Analyze("analysis complete: %d findings", len(fs))
	return fs
}

// CheckInvalidation runs only the invalidation rule (check-invalidation
// subcommand).
func (a *Analyzer) CheckInvalidation(inv *project.Inventory) []findings.Finding {
	fs := a.missingInvalidation(inv)
	fs = dedupe(fs)
	findings.Sort(fs)
	return fs
}

// uncachedViews flags views that run ORM reads with no caching anywhere:
// no cache decorator, no low-level cache use, and no site-wide cache
// middleware pair.
func (a *Analyzer) uncachedViews(inv *project.Inventory) []findings.Finding {
	if inv.Settings.HasSiteCache() {
		logging.AnalyzeDebug("site-wide cache middleware present, skipping %s", RuleUncachedView)
		return nil
	}

	var fs []findings.Finding
	for _, v := range inv.Views {
		if len(v.ORMReads) == 0 || v.CacheExempt() || v.Cached() {
			continue
		}
		msg := fmt.Sprintf("view %q runs %d ORM quer%s without any caching",
			v.Name, len(v.ORMReads), plural(len(v.ORMReads), "y", "ies"))
		if len(v.Models) > 0 {
			msg += " (models: " + strings.Join(v.Models, ", ") + ")"
		}
		fs = append(fs, findings.Finding{
			Code:     RuleUncachedView,
			Severity: findings.SeverityError,
			Message:  msg,
			App:      v.App,
			File:     v.File,
			Line:     v.Line,
			Ref:      v.Ref,
		})
	}
	return fs
}

// cachedViewWrites flags response-cached views that also mutate rows:
// the cached response will go stale the moment the write lands.
func (a *Analyzer) cachedViewWrites(inv *project.Inventory) []findings.Finding {
	var fs []findings.Finding
	for _, v := range inv.Views {
		if !v.CachedByDecorator() || len(v.ORMWrites) == 0 {
			continue
		}
		fs = append(fs, findings.Finding{
			Code:     RuleViewWriteCached,
			Severity: findings.SeverityWarning,
			Message: fmt.Sprintf("cached view %q performs %d ORM write%s; responses may serve stale data",
				v.Name, len(v.ORMWrites), plural(len(v.ORMWrites), "", "s")),
			App:  v.App,
			File: v.File,
			Line: v.Line,
			Ref:  v.Ref,
		})
	}
	return fs
}

// missingInvalidation flags models whose data reaches a cache but is never
// evicted: no invalidating save() override and no invalidating
// post_save/post_delete receiver.
func (a *Analyzer) missingInvalidation(inv *project.Inventory) []findings.Finding {
	siteCache := inv.Settings.HasSiteCache()

	// Model name -> views whose cached output depends on it.
	cachedBy := make(map[string][]string)
	for _, v := range inv.Views {
		if !siteCache && !v.Cached() {
			continue
		}
		if v.CacheExempt() {
			continue
		}
		for _, m := range v.Models {
			cachedBy[m] = append(cachedBy[m], v.Name)
		}
	}

	var fs []findings.Finding
	for name, viewNames := range cachedBy {
		m := inv.ModelByName(name)
		if m == nil || m.Abstract {
			continue
		}
		if m.SaveInvalidates {
			continue
		}
		if receiverInvalidates(inv, name) {
			continue
		}

		sort.Strings(viewNames)
		cause := "cached views"
		if siteCache {
			cause = "site-wide caching"
		}
		fs = append(fs, findings.Finding{
			Code:     RuleMissingInvalidation,
			Severity: findings.SeverityError,
			Message: fmt.Sprintf("model %q feeds %s (%s) but has no cache invalidation on save or via signals",
				m.Name, cause, strings.Join(viewNames, ", ")),
			App:  m.App,
			File: m.File,
			Line: m.Line,
			Ref:  m.Ref,
		})
	}
	return fs
}

// saveSignals are the receiver signals that prove a model's cache entries
// are cleared when instances change. Receivers on other signals are still
// inventoried but do not count as coverage.
var saveSignals = map[string]bool{
	"post_save":   true,
	"post_delete": true,
}

func receiverInvalidates(inv *project.Inventory, model string) bool {
	for _, r := range inv.ReceiversFor(model) {
		if saveSignals[r.Signal] && r.Invalidates {
			return true
		}
	}
	return false
}

// unversionedSets flags cache.set calls with no timeout: entries live until
// evicted, so stale data has no natural expiry.
func (a *Analyzer) unversionedSets(inv *project.Inventory) []findings.Finding {
	var fs []findings.Finding
	for _, v := range inv.Views {
		count := 0
		line := 0
		for _, c := range v.CacheCalls {
			segs := c.Segments()
			if segs[len(segs)-1] != "set" {
				continue
			}
			// cache.set(key, value, timeout) - third positional or keyword
			if len(c.Args) >= 3 || c.HasKeyword("timeout") {
				continue
			}
			count++
			if line == 0 {
				line = c.Line
			}
		}
		if count == 0 {
			continue
		}
		fs = append(fs, findings.Finding{
			Code:     RuleUnversionedSet,
			Severity: findings.SeverityWarning,
			Message: fmt.Sprintf("view %q has %d cache.set call%s without a timeout",
				v.Name, count, plural(count, "", "s")),
			App:  v.App,
			File: v.File,
			Line: line,
			Ref:  v.Ref,
		})
	}
	return fs
}

// noCacheBackend notes cache API usage when settings define no CACHES:
// Django silently falls back to per-process local memory.
func (a *Analyzer) noCacheBackend(inv *project.Inventory) []findings.Finding {
	if inv.Settings.HasCacheBackend() {
		return nil
	}
	uses := false
	for _, v := range inv.Views {
		if len(v.CacheCalls) > 0 {
			uses = true
			break
		}
	}
	if !uses {
		return nil
	}
	return []findings.Finding{{
		Code:     RuleNoCacheBackend,
		Severity: findings.SeverityInfo,
		Message:  "views use the cache API but settings define no CACHES; Django falls back to per-process locmem",
		File:     inv.Settings.Path,
	}}
}

// dedupe enforces (code, file, ref) uniqueness within a run.
func dedupe(fs []findings.Finding) []findings.Finding {
	seen := make(map[string]bool, len(fs))
	out := fs[:0]
	for _, f := range fs {
		if seen[f.Key()] {
			continue
		}
		seen[f.Key()] = true
		out = append(out, f)
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
