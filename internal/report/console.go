package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"cachescope/internal/findings"
	"cachescope/internal/project"
)

// WriteFindings prints findings grouped per app, followed by a tally.
// Verbose mode adds the element ref under each finding.
func WriteFindings(w io.Writer, fs []findings.Finding, verbose bool) {
	if len(fs) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	byApp := make(map[string][]findings.Finding)
	var order []string
	for _, f := range fs {
		app := f.App
		if app == "" {
			app = "(project)"
		}
		if _, ok := byApp[app]; !ok {
			order = append(order, app)
		}
		byApp[app] = append(byApp[app], f)
	}

	for _, app := range order {
		fmt.Fprintf(w, "\n%s\n%s\n", app, strings.Repeat("-", len(app)))
		for _, f := range byApp[app] {
			fmt.Fprintf(w, "  %s\n", f)
			if verbose && f.Ref != "" {
				fmt.Fprintf(w, "      ref: %s\n", f.Ref)
			}
		}
	}

	totals := findings.CountBySeverity(fs)
	fmt.Fprintf(w, "\n%d finding%s: %d error%s, %d warning%s, %d info\n",
		len(fs), plural(len(fs)),
		totals[findings.SeverityError], plural(totals[findings.SeverityError]),
		totals[findings.SeverityWarning], plural(totals[findings.SeverityWarning]),
		totals[findings.SeverityInfo])
}

// WriteSummary prints the project structure overview for inspect.
func WriteSummary(w io.Writer, inv *project.Inventory) {
	line := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nDjango Project Analysis: %s\n%s\n\n", line, inv.Root, line)

	if inv.Settings.Path != "" {
		fmt.Fprintf(w, "Settings: %s\n", inv.Settings.Path)
	} else {
		fmt.Fprintln(w, "Settings: not found")
	}

	fmt.Fprintf(w, "\nInstalled Apps: %d\n", len(inv.Settings.InstalledApps))
	for _, app := range inv.Settings.InstalledApps {
		fmt.Fprintf(w, "  - %s\n", app)
	}

	fmt.Fprintf(w, "\nProject Apps: %d\n", len(inv.Apps))
	for _, app := range inv.Apps {
		fmt.Fprintf(w, "  - %s\n", app.Name)
		fmt.Fprintf(w, "    Models: %v, Views: %v, Forms: %v, Admin: %v\n",
			app.HasModels, app.HasViews, app.HasForms, app.HasAdmin)
	}

	fmt.Fprintf(w, "\nModels: %d\n", len(inv.Models))
	for i, m := range inv.Models {
		if i == 5 {
			fmt.Fprintf(w, "  ... and %d more\n", len(inv.Models)-5)
			break
		}
		fmt.Fprintf(w, "  - %s.%s (%d fields, %d relationships)\n",
			m.App, m.Name, len(m.Fields), len(m.Relations))
	}

	fmt.Fprintf(w, "\nViews: %d\n", len(inv.Views))
	kinds := make(map[project.ViewKind]int)
	for _, v := range inv.Views {
		kinds[v.Kind]++
	}
	for _, kind := range []project.ViewKind{project.ViewFunction, project.ViewClass, project.ViewGeneric} {
		if kinds[kind] > 0 {
			fmt.Fprintf(w, "  - %s: %d\n", kind, kinds[kind])
		}
	}

	fmt.Fprintf(w, "\nForms: %d\n", len(inv.Forms))
	for i, f := range inv.Forms {
		if i == 5 {
			fmt.Fprintf(w, "  ... and %d more\n", len(inv.Forms)-5)
			break
		}
		model := ""
		if f.Model != "" {
			model = fmt.Sprintf(" (model: %s)", f.Model)
		}
		fmt.Fprintf(w, "  - %s.%s (%s)%s\n", f.App, f.Name, f.Kind, model)
	}

	fmt.Fprintf(w, "\nURL Patterns: %d\n", inv.URLPatternCount)

	if len(inv.Settings.Databases) > 0 {
		fmt.Fprintf(w, "\nDatabases: %d\n", len(inv.Settings.Databases))
		for _, alias := range sortedKeys(inv.Settings.Databases) {
			fmt.Fprintf(w, "  - %s: %s\n", alias, inv.Settings.Databases[alias])
		}
	}

	if len(inv.Settings.Caches) > 0 {
		fmt.Fprintf(w, "\nCache Backends: %d\n", len(inv.Settings.Caches))
		for _, alias := range sortedKeys(inv.Settings.Caches) {
			fmt.Fprintf(w, "  - %s: %s\n", alias, inv.Settings.Caches[alias])
		}
	} else {
		fmt.Fprintln(w, "\nCache Backends: none configured")
	}
	if inv.Settings.HasSiteCache() {
		fmt.Fprintln(w, "Site-wide cache middleware: enabled")
	}

	if len(inv.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped Files: %d\n", len(inv.Skipped))
		for _, s := range inv.Skipped {
			fmt.Fprintf(w, "  - %s (%s)\n", s.Path, s.Reason)
		}
	}

	fmt.Fprintln(w)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
