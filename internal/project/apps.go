package project

import (
	"os"
	"path/filepath"
	"sort"

	"cachescope/internal/logging"
)

// App is a first-party Django app discovered on disk.
type App struct {
	Name          string `json:"name"`
	Path          string `json:"path"` // relative to project root
	HasModels     bool   `json:"has_models"`
	HasViews      bool   `json:"has_views"`
	HasForms      bool   `json:"has_forms"`
	HasURLs       bool   `json:"has_urls"`
	HasAdmin      bool   `json:"has_admin"`
	HasTests      bool   `json:"has_tests"`
	HasMigrations bool   `json:"has_migrations"`
}

// DiscoverApps returns the installed apps that exist as top-level project
// directories. Dotted entries (django.contrib.*, third-party packages) are
// not on disk and are skipped, matching how installed apps map to source.
func DiscoverApps(root string, installed []string) []App {
	var apps []App
	for _, name := range installed {
		if name == "" || containsDot(name) {
			continue
		}
		dir := filepath.Join(root, name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		apps = append(apps, App{
			Name:          name,
			Path:          name,
			HasModels:     fileOrDir(dir, "models"),
			HasViews:      fileOrDir(dir, "views"),
			HasForms:      fileExists(filepath.Join(dir, "forms.py")),
			HasURLs:       fileExists(filepath.Join(dir, "urls.py")),
			HasAdmin:      fileExists(filepath.Join(dir, "admin.py")),
			HasTests:      fileExists(filepath.Join(dir, "tests.py")) || dirExists(filepath.Join(dir, "tests")),
			HasMigrations: dirExists(filepath.Join(dir, "migrations")),
		})
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	logging.ScanDebug("project: discovered %d apps on disk", len(apps))
	return apps
}

// FilterApps restricts apps to a single named app; empty name keeps all.
func FilterApps(apps []App, name string) []App {
	if name == "" {
		return apps
	}
	for _, a := range apps {
		if a.Name == name {
			return []App{a}
		}
	}
	return nil
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

// fileOrDir reports whether name.py or name/ exists under dir.
func fileOrDir(dir, name string) bool {
	return fileExists(filepath.Join(dir, name+".py")) || dirExists(filepath.Join(dir, name))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
