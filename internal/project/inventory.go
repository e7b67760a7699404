package project

import (
	"cachescope/internal/pyast"
)

// Field is a model field or relationship.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Model is a concrete Django model found in an app's models module.
type Model struct {
	Name      string  `json:"name"`
	App       string  `json:"app"`
	File      string  `json:"file"` // relative to project root
	Ref       string  `json:"ref"`
	Line      int     `json:"line"`
	Fields    []Field `json:"fields"`
	Relations []Field `json:"relations"`
	Abstract  bool    `json:"abstract"`
	// HasSaveOverride is true when the model defines save().
	HasSaveOverride bool `json:"has_save_override"`
	// SaveInvalidates is true when that save() performs cache invalidation.
	SaveInvalidates bool `json:"save_invalidates"`
}

// ViewKind classifies how a view is written.
type ViewKind string

const (
	ViewFunction ViewKind = "function"
	ViewClass    ViewKind = "class"
	ViewGeneric  ViewKind = "generic"
)

// View is a view callable found in an app's views module.
type View struct {
	Name       string            `json:"name"`
	App        string            `json:"app"`
	File       string            `json:"file"`
	Ref        string            `json:"ref"`
	Line       int               `json:"line"`
	Kind       ViewKind          `json:"kind"`
	Async      bool              `json:"async"`
	Bases      []string          `json:"bases,omitempty"`
	Decorators []pyast.Decorator `json:"-"`
	ORMReads   []pyast.Call      `json:"-"`
	ORMWrites  []pyast.Call      `json:"-"`
	CacheCalls []pyast.Call      `json:"-"`
	Models     []string          `json:"models,omitempty"` // model names touched via ORM
}

// Form is a Django form class.
type Form struct {
	Name  string `json:"name"`
	App   string `json:"app"`
	File  string `json:"file"`
	Ref   string `json:"ref"`
	Kind  string `json:"kind"`            // "Form" or "ModelForm"
	Model string `json:"model,omitempty"` // Meta.model for ModelForms
}

// Receiver is a signal receiver hookup relevant to cache invalidation.
type Receiver struct {
	App    string `json:"app"`
	File   string `json:"file"`
	Ref    string `json:"ref"`
	Signal string `json:"signal"`           // post_save, post_delete, ...
	Sender string `json:"sender,omitempty"` // model name, "" when unbound
	// Invalidates is true when the receiver body performs cache invalidation.
	Invalidates bool `json:"invalidates"`
}

// SkippedFile records a file the scan could not process.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Inventory is everything one scan learned about a project.
type Inventory struct {
	Root            string        `json:"project_root"`
	Settings        Settings      `json:"settings"`
	Apps            []App         `json:"apps"`
	Models          []Model       `json:"models"`
	Views           []View        `json:"views"`
	Forms           []Form        `json:"forms"`
	Receivers       []Receiver    `json:"receivers"`
	URLPatternCount int           `json:"url_pattern_count"`
	FileCount       int           `json:"file_count"`
	Files           []FileRecord  `json:"files"`
	Skipped         []SkippedFile `json:"skipped_files"`
}

// ModelByName returns the model with the given name, or nil.
func (inv *Inventory) ModelByName(name string) *Model {
	for i := range inv.Models {
		if inv.Models[i].Name == name {
			return &inv.Models[i]
		}
	}
	return nil
}

// ReceiversFor returns the receivers bound to the given model, including
// receivers with no sender (they fire for every model).
func (inv *Inventory) ReceiversFor(model string) []Receiver {
	var out []Receiver
	for _, r := range inv.Receivers {
		if r.Sender == model || r.Sender == "" {
			out = append(out, r)
		}
	}
	return out
}
