package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/trackraster/internal/channels"
	"github.com/banshee-data/trackraster/internal/fsutil"
	"github.com/banshee-data/trackraster/internal/timegrid"
)

// DefaultConfigPath is the path to the canonical feature-map defaults file.
const DefaultConfigPath = "config/featuremap.defaults.json"

// ErrInvalidConfig wraps every configuration error raised while loading or
// validating a FeatureConfig.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Format selects the decoder used for a configuration file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("config file must have .json, .yaml, .yml or .toml extension, got %q", ext)
	}
}

// FeatureMapParams is the output raster geometry.
type FeatureMapParams struct {
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	Resolution float64 `json:"resolution"` // metres per pixel
}

// TimeGridParams selects history offsets; see package timegrid.
type TimeGridParams struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
	Step  int `json:"step"`
}

// RendererParams names one renderer kind ("vehicles", "pedestrians") and
// its enabled attributes. Kinds and attributes are checked when the
// renderer is built.
type RendererParams struct {
	Kind       string
	Attributes []string
}

// RendererGroup shares one time grid between several renderers.
type RendererGroup struct {
	TimeGrid  TimeGridParams
	Renderers []RendererParams
}

// FeatureConfig is the root configuration for the feature renderer.
type FeatureConfig struct {
	FeatureMap FeatureMapParams
	Groups     []RendererGroup
}

// LoadFeatureConfig loads a FeatureConfig from a JSON, YAML or TOML file.
// The file is checked for extension and size before it is parsed.
func LoadFeatureConfig(path string) (*FeatureConfig, error) {
	return LoadFeatureConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadFeatureConfigFS is LoadFeatureConfig reading through fsys.
func LoadFeatureConfigFS(fsys fsutil.FileSystem, path string) (*FeatureConfig, error) {
	fsys = fsutil.OrOS(fsys)
	cleanPath := filepath.Clean(path)
	format, err := FormatFromPath(cleanPath)
	if err != nil {
		return nil, err
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := DecodeFeatureConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for tests and binaries.
func MustLoadDefaultConfig() *FeatureConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/* and cmd/*
	}
	for _, path := range candidates {
		if cfg, err := LoadFeatureConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// DecodeFeatureConfig parses and validates configuration bytes.
func DecodeFeatureConfig(data []byte, format Format) (*FeatureConfig, error) {
	tree := map[string]any{}
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, format)
	}
	return ParseFeatureConfig(tree)
}

// ParseFeatureConfig builds a FeatureConfig from a decoded document tree
// with keys feature_map_params and renderers_groups.
func ParseFeatureConfig(tree map[string]any) (*FeatureConfig, error) {
	var cfg FeatureConfig

	fm, err := asMap(tree["feature_map_params"], "feature_map_params")
	if err != nil {
		return nil, err
	}
	if cfg.FeatureMap.Rows, err = asInt(fm["rows"], "feature_map_params.rows"); err != nil {
		return nil, err
	}
	if cfg.FeatureMap.Cols, err = asInt(fm["cols"], "feature_map_params.cols"); err != nil {
		return nil, err
	}
	if cfg.FeatureMap.Resolution, err = asFloat(fm["resolution"], "feature_map_params.resolution"); err != nil {
		return nil, err
	}

	groups, err := asList(tree["renderers_groups"], "renderers_groups")
	if err != nil {
		return nil, err
	}
	for gi, g := range groups {
		where := fmt.Sprintf("renderers_groups[%d]", gi)
		gm, err := asMap(g, where)
		if err != nil {
			return nil, err
		}
		group, err := parseGroup(gm, where)
		if err != nil {
			return nil, err
		}
		cfg.Groups = append(cfg.Groups, group)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseGroup(gm map[string]any, where string) (RendererGroup, error) {
	var group RendererGroup

	tg, err := asMap(gm["time_grid_params"], where+".time_grid_params")
	if err != nil {
		return group, err
	}
	if group.TimeGrid.Start, err = asInt(tg["start"], where+".time_grid_params.start"); err != nil {
		return group, err
	}
	if group.TimeGrid.Stop, err = asInt(tg["stop"], where+".time_grid_params.stop"); err != nil {
		return group, err
	}
	group.TimeGrid.Step = 1
	if step, ok := tg["step"]; ok {
		if group.TimeGrid.Step, err = asInt(step, where+".time_grid_params.step"); err != nil {
			return group, err
		}
	}

	renderers, err := asList(gm["renderers"], where+".renderers")
	if err != nil {
		return group, err
	}
	for ri, r := range renderers {
		rwhere := fmt.Sprintf("%s.renderers[%d]", where, ri)
		rm, err := asMap(r, rwhere)
		if err != nil {
			return group, err
		}
		if len(rm) != 1 {
			return group, fmt.Errorf("%w: %s must have exactly one renderer kind, got %d keys", ErrInvalidConfig, rwhere, len(rm))
		}
		for kind, attrs := range rm {
			names, err := attributeNames(attrs, rwhere+"."+kind)
			if err != nil {
				return group, err
			}
			group.Renderers = append(group.Renderers, RendererParams{Kind: kind, Attributes: names})
		}
	}
	return group, nil
}

// attributeNames accepts either a mapping, where key presence enables an
// attribute unless its value is false, or a list of names. Mapping keys are
// returned sorted; renderers impose their own channel order anyway.
func attributeNames(v any, where string) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		names := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] must be a string, got %T", ErrInvalidConfig, where, i, item)
			}
			names = append(names, s)
		}
		return names, nil
	case []string:
		return append([]string(nil), t...), nil
	case map[string]any:
		names := make([]string, 0, len(t))
		for k, val := range t {
			if b, ok := val.(bool); ok && !b {
				continue
			}
			names = append(names, k)
		}
		slices.Sort(names)
		return names, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a mapping or list of attributes, got %T", ErrInvalidConfig, where, v)
	}
}

// Validate checks raster geometry, every group's time grid, and each
// renderer's kind and attributes. Errors wrap ErrInvalidConfig together with
// the underlying timegrid or channels error.
func (c *FeatureConfig) Validate() error {
	if c.FeatureMap.Rows <= 0 {
		return fmt.Errorf("%w: feature_map_params.rows must be positive, got %d", ErrInvalidConfig, c.FeatureMap.Rows)
	}
	if c.FeatureMap.Cols <= 0 {
		return fmt.Errorf("%w: feature_map_params.cols must be positive, got %d", ErrInvalidConfig, c.FeatureMap.Cols)
	}
	if !(c.FeatureMap.Resolution > 0) {
		return fmt.Errorf("%w: feature_map_params.resolution must be positive, got %v", ErrInvalidConfig, c.FeatureMap.Resolution)
	}
	for i, g := range c.Groups {
		if len(g.Renderers) == 0 {
			return fmt.Errorf("%w: renderers_groups[%d] has no renderers", ErrInvalidConfig, i)
		}
		grid := timegrid.Grid{Start: g.TimeGrid.Start, Stop: g.TimeGrid.Stop, Step: g.TimeGrid.Step}
		if err := grid.Validate(); err != nil {
			return fmt.Errorf("%w: renderers_groups[%d].time_grid_params: %w", ErrInvalidConfig, i, err)
		}
		for j, r := range g.Renderers {
			if err := r.validate(); err != nil {
				return fmt.Errorf("%w: renderers_groups[%d].renderers[%d]: %w", ErrInvalidConfig, i, j, err)
			}
		}
	}
	return nil
}

func (r RendererParams) validate() error {
	class, err := channels.ParseClass(r.Kind)
	if err != nil {
		return err
	}
	for _, name := range r.Attributes {
		a, err := channels.ParseAttribute(name)
		if err != nil {
			return err
		}
		if !slices.Contains(class.Allowed(), a) {
			return fmt.Errorf("%w: %s for %s", channels.ErrUnsupportedAttribute, a, class)
		}
	}
	return nil
}
