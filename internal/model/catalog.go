package model

import (
	"sort"

	"github.com/go-json-experiment/json/jsontext"
)

// ScanMode selects the tool and mode a scan runs with.
type ScanMode struct {
	Tool string `json:"tool"`
	Mode string `json:"mode"`
}

// Catalog is the scan configuration catalog published by the scan service.
// RunScan carries the service's default selection.
type Catalog struct {
	Tools   map[string]ScanTool `json:"tools"`
	RunScan struct {
		ScanMode ScanMode `json:"scanMode"`
	} `json:"run_scan,omitzero"`
}

// ScanTool lists the modes one tool supports.
type ScanTool struct {
	Modes map[string]ScanModeConfig `json:"modes"`
}

// ScanModeConfig holds the settings a mode accepts. Each setting is kept as
// the raw JSON the service sent.
type ScanModeConfig struct {
	Config map[string]jsontext.Value `json:"config,omitzero"`
}

// ToolNames returns the catalog's tools in name order.
func (c *Catalog) ToolNames() []string {
	if c == nil {
		return nil
	}
	return sortedKeys(c.Tools)
}

// ModeNames returns the modes of tool in name order.
func (c *Catalog) ModeNames(tool string) []string {
	if c == nil {
		return nil
	}
	return sortedKeys(c.Tools[tool].Modes)
}

// Supports reports whether the catalog offers sel.
func (c *Catalog) Supports(sel ScanMode) bool {
	if c == nil {
		return false
	}
	t, ok := c.Tools[sel.Tool]
	if !ok {
		return false
	}
	_, ok = t.Modes[sel.Mode]
	return ok
}

// Default is the selection the service proposes.
func (c *Catalog) Default() ScanMode {
	if c == nil {
		return ScanMode{}
	}
	return c.RunScan.ScanMode
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
