// Package report renders analysis results as console text or JSON.
package report

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"cachescope/internal/findings"
	"cachescope/internal/logging"
	"cachescope/internal/project"
)

// Document is the machine-readable report schema.
type Document struct {
	ProjectRoot     string                    `json:"project_root"`
	GeneratedAt     time.Time                 `json:"generated_at"`
	Settings        project.Settings          `json:"settings"`
	Apps            []project.App             `json:"apps"`
	Models          []project.Model           `json:"models"`
	Views           []project.View            `json:"views"`
	Forms           []project.Form            `json:"forms"`
	Receivers       []project.Receiver        `json:"receivers"`
	URLPatternCount int                       `json:"url_pattern_count"`
	FileCount       int                       `json:"file_count"`
	Findings        []findings.Finding        `json:"findings"`
	SkippedFiles    []project.SkippedFile     `json:"skipped_files"`
	Totals          map[findings.Severity]int `json:"totals"`
}

// BuildDocument assembles a Document from an inventory and its findings.
func BuildDocument(inv *project.Inventory, fs []findings.Finding) *Document {
	return &Document{
		ProjectRoot:     inv.Root,
		GeneratedAt:     time.Now().UTC(),
		Settings:        inv.Settings,
		Apps:            inv.Apps,
		Models:          inv.Models,
		Views:           inv.Views,
		Forms:           inv.Forms,
		Receivers:       inv.Receivers,
		URLPatternCount: inv.URLPatternCount,
		FileCount:       inv.FileCount,
		Findings:        fs,
		SkippedFiles:    inv.Skipped,
		Totals:          findings.CountBySeverity(fs),
	}
}

// WriteJSON writes the document with two-space indentation.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteJSONFile writes the document to path, or stdout when path is empty.
func WriteJSONFile(path string, doc *Document) error {
	if path == "" {
		return WriteJSON(os.Stdout, doc)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteJSON(f, doc); err != nil {
		return err
	}
	logging.Report("wrote JSON report to %s", path)
	return nil
}
