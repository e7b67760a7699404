// Package project discovers Django-project-shaped directory trees and builds
// an inventory of their apps, models, views, forms, and signal receivers.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cachescope/internal/logging"
)

// ErrNoProject indicates no manage.py was found near the given directory.
var ErrNoProject = errors.New("no Django project found (manage.py missing)")

// Locate resolves the Django project root starting from dir.
// It walks upward looking for manage.py, then probes one level down.
func Locate(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	// Phase 1: walk upward
	cur := abs
	for {
		if hasManagePy(cur) {
			logging.BootDebug("project: located root at %s", cur)
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	// Phase 2: probe immediate children
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", abs, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		child := filepath.Join(abs, e.Name())
		if hasManagePy(child) {
			logging.BootDebug("project: located root at %s", child)
			return child, nil
		}
	}

	return "", fmt.Errorf("%w: searched from %s", ErrNoProject, abs)
}

func hasManagePy(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "manage.py"))
	return err == nil && !info.IsDir()
}
