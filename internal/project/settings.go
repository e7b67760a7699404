package project

import (
	"os"
	"path/filepath"
	"strings"

	"cachescope/internal/logging"
	"cachescope/internal/pyast"
)

// Settings holds the configuration extracted from the project's settings.py.
// Only the surface the analyzer consumes is extracted; everything else in
// the settings module is ignored.
type Settings struct {
	Path                   string            `json:"path"` // relative to project root, "" if not found
	InstalledApps          []string          `json:"installed_apps"`
	Middleware             []string          `json:"middleware"`
	Databases              map[string]string `json:"databases"` // alias -> ENGINE
	Caches                 map[string]string `json:"caches"`    // alias -> BACKEND
	CacheMiddlewareSeconds bool              `json:"cache_middleware_seconds"`
}

// HasSiteCache reports whether the site-wide cache middleware pair is
// installed. Both halves are required for Django's per-site caching.
func (s Settings) HasSiteCache() bool {
	update, fetch := false, false
	for _, m := range s.Middleware {
		if strings.HasSuffix(m, "UpdateCacheMiddleware") {
			update = true
		}
		if strings.HasSuffix(m, "FetchFromCacheMiddleware") {
			fetch = true
		}
	}
	return update && fetch
}

// HasCacheBackend reports whether CACHES defines at least one backend.
func (s Settings) HasCacheBackend() bool {
	return len(s.Caches) > 0
}

// settingsCandidates are tried in order before falling back to a walk.
var settingsCandidates = []string{
	"settings.py",
	filepath.Join("config", "settings.py"),
	filepath.Join("settings", "base.py"),
	filepath.Join("settings", "settings.py"),
}

// LoadSettings finds and parses the project settings module.
// A missing settings file is not an error: the zero Settings is returned
// and the analyzer runs with middleware checks treated as absent.
func LoadSettings(root string, parser *pyast.Parser) (Settings, error) {
	s := Settings{
		Databases: make(map[string]string),
		Caches:    make(map[string]string),
	}

	path := findSettings(root)
	if path == "" {
		logging.ScanWarn("project: no settings.py found under %s", root)
		return s, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	f, err := parser.Parse(path, content)
	if err != nil {
		// Unparseable settings degrade to empty settings, matching the
		// skip-and-continue policy for every other file.
		logging.ScanWarn("project: could not parse settings %s: %v", path, err)
		return s, nil
	}

	rel, relErr := filepath.Rel(root, path)
	if relErr == nil {
		s.Path = filepath.ToSlash(rel)
	} else {
		s.Path = path
	}

	if a := f.ModuleAssign("INSTALLED_APPS"); a != nil && a.Value.Kind == pyast.ValueList {
		s.InstalledApps = a.Value.List
	}
	if a := f.ModuleAssign("MIDDLEWARE"); a != nil && a.Value.Kind == pyast.ValueList {
		s.Middleware = a.Value.List
	}
	if a := f.ModuleAssign("DATABASES"); a != nil && a.Value.Kind == pyast.ValueMap {
		for alias, cfg := range a.Value.Map {
			if cfg.Kind == pyast.ValueMap {
				s.Databases[alias] = cfg.Map["ENGINE"].Str
			}
		}
	}
	if a := f.ModuleAssign("CACHES"); a != nil && a.Value.Kind == pyast.ValueMap {
		for alias, cfg := range a.Value.Map {
			if cfg.Kind == pyast.ValueMap {
				s.Caches[alias] = cfg.Map["BACKEND"].Str
			}
		}
	}
	s.CacheMiddlewareSeconds = f.ModuleAssign("CACHE_MIDDLEWARE_SECONDS") != nil

	logging.ScanDebug("project: settings %s - %d apps, %d middleware, %d caches",
		s.Path, len(s.InstalledApps), len(s.Middleware), len(s.Caches))
	return s, nil
}

// findSettings locates the settings module: known locations first, then the
// first settings.py found walking the tree (skipping environment dirs).
func findSettings(root string) string {
	for _, cand := range settingsCandidates {
		path := filepath.Join(root, cand)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	var found string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			name := info.Name()
			if path != root && (strings.HasPrefix(name, ".") || isEnvDir(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == "settings.py" && found == "" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// isEnvDir matches virtualenv and dependency directories. Captured
// dependency trees are the one thing a Django checkout reliably ships that
// must never be scanned, so any "venv"-ish name is excluded.
func isEnvDir(name string) bool {
	switch name {
	case "env", "site-packages", "node_modules", "__pycache__":
		return true
	}
	return strings.Contains(name, "venv")
}
