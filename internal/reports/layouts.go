package reports

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tilesmart/tiles-admin/internal/layout"
)

// Layouts overrides report presentation per deployment.
type Layouts struct {
	Reports map[string]ReportLayout `yaml:"reports"`
}

// ReportLayout overrides one report.
type ReportLayout struct {
	Title       string                 `yaml:"title"`
	Orientation string                 `yaml:"orientation"`
	Tables      map[string]TableLayout `yaml:"tables"`
}

// TableLayout overrides one table of a report.
type TableLayout struct {
	PageSize int      `yaml:"page_size"`
	Hidden   []string `yaml:"hidden"`
}

// LoadLayouts reads overrides from path. An empty path yields no overrides.
func LoadLayouts(path string) (Layouts, error) {
	if strings.TrimSpace(path) == "" {
		return Layouts{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layouts{}, err
	}
	return ParseLayouts(data)
}

// ParseLayouts decodes and validates YAML overrides.
func ParseLayouts(data []byte) (Layouts, error) {
	var l Layouts
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layouts{}, fmt.Errorf("reports: parse layouts: %w", err)
	}
	for name, rl := range l.Reports {
		if _, err := orientationOf(rl.Orientation); err != nil {
			return Layouts{}, fmt.Errorf("reports: layout %s: %w", name, err)
		}
		for id, tl := range rl.Tables {
			if tl.PageSize < 0 {
				return Layouts{}, fmt.Errorf("reports: layout %s.%s: page_size must not be negative", name, id)
			}
		}
	}
	return l, nil
}

func orientationOf(raw string) (layout.Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case "p", "portrait":
		return layout.Portrait, nil
	case "l", "landscape":
		return layout.Landscape, nil
	}
	return "", fmt.Errorf("unknown orientation %q", raw)
}

func applyLayout[Resp, Row any](def Definition[Resp, Row], l Layouts) Definition[Resp, Row] {
	rl, ok := l.Reports[def.Meta.Name]
	if !ok {
		return def
	}
	if rl.Title != "" {
		def.Meta.Title = rl.Title
	}
	if o, _ := orientationOf(rl.Orientation); o != "" {
		def.Meta.Export.Orientation = o
	}
	sections := make([]Section[Resp, Row], len(def.Sections))
	for i, sec := range def.Sections {
		if tl, ok := rl.Tables[sec.ID]; ok {
			sec.Table = sec.Table.Configure(tl.PageSize, tl.Hidden)
		}
		sections[i] = sec
	}
	def.Sections = sections
	return def
}
