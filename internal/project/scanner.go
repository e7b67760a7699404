package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cachescope/internal/logging"
	"cachescope/internal/pyast"

	"golang.org/x/sync/errgroup"
)

// ScanOptions controls scanning performance and scope.
type ScanOptions struct {
	// App restricts the scan to one app; empty scans all installed apps.
	App string
	// Workers limits concurrent file workers.
	Workers int
	// IgnorePatterns skips matching directory names within app trees.
	IgnorePatterns []string
	// MaxFileBytes skips parsing files larger than this size.
	MaxFileBytes int64
}

// DefaultScanOptions returns sane defaults for large projects.
func DefaultScanOptions() ScanOptions {
	workers := runtime.NumCPU()
	if workers > 20 {
		workers = 20
	}
	if workers < 4 {
		workers = 4
	}
	if env := os.Getenv("CACHESCOPE_SCAN_WORKERS"); env != "" {
		if v, err := strconv.Atoi(env); err == nil && v > 0 {
			workers = v
		}
	}

	maxBytes := int64(2 * 1024 * 1024)
	if env := os.Getenv("CACHESCOPE_MAX_FILE_BYTES"); env != "" {
		if v, err := strconv.ParseInt(env, 10, 64); err == nil && v > 0 {
			maxBytes = v
		}
	}

	return ScanOptions{
		Workers: workers,
		IgnorePatterns: []string{
			"migrations",
			"__pycache__",
			"static",
			"templates",
			"node_modules",
			".git",
		},
		MaxFileBytes: maxBytes,
	}
}

// FileRecord is a scanned source file with its content hash.
type FileRecord struct {
	Path string `json:"path"` // relative to project root
	Hash string `json:"hash"`
	Role string `json:"role"` // models, views, forms, urls, other
}

// fileTask is one file queued for a parse worker.
type fileTask struct {
	absPath string
	relPath string
	app     string
	role    string
	info    os.FileInfo
}

// Scanner walks a project's app directories and builds an Inventory.
type Scanner struct {
	root string
	opts ScanOptions
}

// NewScanner creates a scanner for the given project root.
func NewScanner(root string, opts ScanOptions) *Scanner {
	return &Scanner{root: root, opts: opts}
}

// Scan builds the full project inventory. Per-file failures are recorded in
// Inventory.Skipped and never abort the scan.
func (s *Scanner) Scan(ctx context.Context) (*Inventory, error) {
	timer := logging.StartTimer(logging.CategoryScan, "Scan")
	defer timer.Stop()

	settingsParser := pyast.NewParser(s.root)
	settings, err := LoadSettings(s.root, settingsParser)
	if err != nil {
		return nil, err
	}

	apps := DiscoverApps(s.root, settings.InstalledApps)
	if len(apps) == 0 {
		apps = discoverAppsByLayout(s.root)
	}
	apps = FilterApps(apps, s.opts.App)
	if s.opts.App != "" && len(apps) == 0 {
		return nil, fmt.Errorf("app %q not found in project", s.opts.App)
	}

	inv := &Inventory{
		Root:     s.root,
		Settings: settings,
		Apps:     apps,
	}

	tasks, skipped := s.collectFiles(apps)
	inv.Skipped = skipped

	cache := NewFileCache(s.root)
	defer cache.Save()

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	taskCh := make(chan fileTask)

	workers := s.opts.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		// Tree-sitter parsers are not safe for concurrent use; each
		// worker owns one.
		parser := pyast.NewParser(s.root)
		g.Go(func() error {
			for task := range taskCh {
				s.scanFile(parser, cache, task, inv, &mu)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.finalize(inv)
	logging.Scan("scan complete: %d files, %d models, %d views, %d findings-relevant receivers",
		inv.FileCount, len(inv.Models), len(inv.Views), len(inv.Receivers))
	return inv, nil
}

// collectFiles walks app directories and queues parseable Python files.
func (s *Scanner) collectFiles(apps []App) ([]fileTask, []SkippedFile) {
	var tasks []fileTask
	var skipped []SkippedFile

	for _, app := range apps {
		appDir := filepath.Join(s.root, app.Path)
		filepath.Walk(appDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				skipped = append(skipped, SkippedFile{Path: path, Reason: err.Error()})
				return nil
			}
			if info.IsDir() {
				if path != appDir && s.ignored(info.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".py" {
				return nil
			}

			rel, relErr := filepath.Rel(s.root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if isTestFile(rel) {
				return nil
			}
			if s.opts.MaxFileBytes > 0 && info.Size() > s.opts.MaxFileBytes {
				logging.ScanWarn("skipping oversized file %s (%d bytes)", rel, info.Size())
				skipped = append(skipped, SkippedFile{Path: rel, Reason: "file too large"})
				return nil
			}

			tasks = append(tasks, fileTask{
				absPath: path,
				relPath: rel,
				app:     app.Name,
				role:    fileRole(app, rel),
				info:    info,
			})
			return nil
		})
	}

	return tasks, skipped
}

// scanFile parses and classifies one file, merging results under mu.
func (s *Scanner) scanFile(parser *pyast.Parser, cache *FileCache, task fileTask, inv *Inventory, mu *sync.Mutex) {
	content, err := os.ReadFile(task.absPath)
	if err != nil {
		mu.Lock()
		inv.Skipped = append(inv.Skipped, SkippedFile{Path: task.relPath, Reason: err.Error()})
		mu.Unlock()
		return
	}

	var hash string
	if cached, hit := cache.Get(task.absPath, task.info); hit {
		hash = cached
	} else {
		sum := sha256.Sum256(content)
		hash = hex.EncodeToString(sum[:])
		cache.Update(task.absPath, task.info, hash)
	}

	f, err := parser.Parse(task.absPath, content)
	if err != nil {
		logging.ScanWarn("could not parse %s: %v", task.relPath, err)
		mu.Lock()
		inv.Skipped = append(inv.Skipped, SkippedFile{Path: task.relPath, Reason: "syntax error"})
		mu.Unlock()
		return
	}

	models := []Model(nil)
	views := []View(nil)
	forms := []Form(nil)
	urls := 0
	switch task.role {
	case "models":
		models = classifyModels(f, task.app)
	case "views":
		views = classifyViews(f, task.app)
	case "forms":
		forms = classifyForms(f, task.app)
	case "urls":
		urls = countURLPatterns(f)
	}
	receivers := classifyReceivers(f, task.app)

	mu.Lock()
	defer mu.Unlock()
	inv.FileCount++
	inv.Files = append(inv.Files, FileRecord{Path: task.relPath, Hash: hash, Role: task.role})
	inv.Models = append(inv.Models, models...)
	inv.Views = append(inv.Views, views...)
	inv.Forms = append(inv.Forms, forms...)
	inv.Receivers = append(inv.Receivers, receivers...)
	inv.URLPatternCount += urls
}

// finalize orders the inventory deterministically regardless of worker
// completion order.
func (s *Scanner) finalize(inv *Inventory) {
	sort.Slice(inv.Files, func(i, j int) bool { return inv.Files[i].Path < inv.Files[j].Path })
	sort.Slice(inv.Models, func(i, j int) bool {
		return byFileLine(inv.Models[i].File, inv.Models[i].Line, inv.Models[j].File, inv.Models[j].Line)
	})
	sort.Slice(inv.Views, func(i, j int) bool {
		return byFileLine(inv.Views[i].File, inv.Views[i].Line, inv.Views[j].File, inv.Views[j].Line)
	})
	sort.Slice(inv.Forms, func(i, j int) bool {
		return inv.Forms[i].File+inv.Forms[i].Name < inv.Forms[j].File+inv.Forms[j].Name
	})
	sort.Slice(inv.Receivers, func(i, j int) bool {
		return inv.Receivers[i].File+inv.Receivers[i].Ref < inv.Receivers[j].File+inv.Receivers[j].Ref
	})
	sort.Slice(inv.Skipped, func(i, j int) bool { return inv.Skipped[i].Path < inv.Skipped[j].Path })
}

func byFileLine(f1 string, l1 int, f2 string, l2 int) bool {
	if f1 != f2 {
		return f1 < f2
	}
	return l1 < l2
}

func (s *Scanner) ignored(name string) bool {
	for _, p := range s.opts.IgnorePatterns {
		if name == p {
			return true
		}
	}
	return strings.HasPrefix(name, ".") || isEnvDir(name)
}

// fileRole maps a relative path to the kind of module it is within its app.
func fileRole(app App, rel string) string {
	inApp := strings.TrimPrefix(rel, app.Path+"/")
	switch {
	case inApp == "models.py" || strings.HasPrefix(inApp, "models/"):
		return "models"
	case inApp == "views.py" || strings.HasPrefix(inApp, "views/"):
		return "views"
	case inApp == "forms.py":
		return "forms"
	case inApp == "urls.py":
		return "urls"
	}
	return "other"
}

// isTestFile reports whether a Python file is a test module.
func isTestFile(rel string) bool {
	base := filepath.Base(rel)
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") || base == "tests.py" {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if part == "tests" || part == "test" {
			return true
		}
	}
	return false
}

// discoverAppsByLayout finds app-shaped directories when settings are
// missing or define no first-party apps: any top-level directory with
// models or views modules counts.
func discoverAppsByLayout(root string) []App {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || isEnvDir(name) {
			continue
		}
		dir := filepath.Join(root, name)
		if fileOrDir(dir, "models") || fileOrDir(dir, "views") {
			names = append(names, name)
		}
	}
	return DiscoverApps(root, names)
}
