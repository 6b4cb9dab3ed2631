package presets

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/filter"
)

// Mapper converts the presets file to filter presets
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapPresets converts a PresetsConfig to []*filter.Preset. Any invalid
// entry fails the whole file so that a typo never silently widens a search.
func (m *Mapper) MapPresets(config PresetsConfig) ([]*filter.Preset, error) {
	presets := make([]*filter.Preset, 0, len(config.Presets))
	seen := make(map[string]bool, len(config.Presets))

	for i, props := range config.Presets {
		name := strings.TrimSpace(props.Name)
		if name == "" {
			return nil, fmt.Errorf("preset #%d: missing name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("preset %q: duplicate name", name)
		}
		seen[name] = true

		preset, err := m.mapPreset(name, props)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		presets = append(presets, preset)
	}

	if len(presets) == 0 {
		return nil, fmt.Errorf("no presets found in presets file")
	}

	return presets, nil
}

func (m *Mapper) mapPreset(name string, props PresetProps) (*filter.Preset, error) {
	preset := &filter.Preset{Name: name}

	for _, f := range props.Filters {
		sf, err := mapFilter(f)
		if err != nil {
			return nil, err
		}
		preset.Filters = append(preset.Filters, sf)
	}

	for _, r := range props.Rules {
		rule, err := mapRule(r)
		if err != nil {
			return nil, err
		}
		preset.Rules = append(preset.Rules, rule)
	}

	for _, s := range props.Sort {
		rule, err := mapSort(s)
		if err != nil {
			return nil, err
		}
		preset.SortRules = append(preset.SortRules, rule)
	}

	return preset, nil
}

func mapFilter(f FilterProps) (domain.SearchFilter, error) {
	if f.Key == "" {
		return domain.SearchFilter{}, fmt.Errorf("filter without key")
	}
	op, value, err := parseComparison(f.Op, f.Type, f.Value)
	if err != nil {
		return domain.SearchFilter{}, fmt.Errorf("filter %s: %w", f.Key, err)
	}
	return domain.SearchFilter{Key: f.Key, Value: value, Op: op, ApplyToQuery: f.Query}, nil
}

func mapRule(r RuleProps) (filter.Rule, error) {
	switch strings.ToLower(r.Kind) {
	case "ping":
		if r.MaxPing <= 0 {
			return nil, fmt.Errorf("ping rule needs a positive max_ping")
		}
		rule := filter.NewPingRule(r.MaxPing)
		rule.Enabled = !r.Disabled
		return rule, nil
	case "open_slots":
		rule := filter.NewOpenSlotsRule(r.MinOpen)
		rule.Enabled = !r.Disabled
		return rule, nil
	case "key_value":
		if r.Key == "" {
			return nil, fmt.Errorf("key_value rule without key")
		}
		op, value, err := parseComparison(r.Op, r.Type, r.Value)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Key, err)
		}
		rule := filter.NewKeyValueRule(r.Key, op, value, r.Query)
		rule.Enabled = !r.Disabled
		return rule, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", r.Kind)
}

func mapSort(s SortProps) (filter.SortRule, error) {
	switch strings.ToLower(s.Kind) {
	case "ping":
		rule := filter.NewPingSort(s.Priority)
		rule.Descending = s.Descending
		rule.Enabled = !s.Disabled
		return rule, nil
	case "player_count", "players":
		rule := filter.NewPlayerCountSort(s.Priority, s.Descending)
		rule.Enabled = !s.Disabled
		return rule, nil
	}
	return nil, fmt.Errorf("unknown sort kind %q", s.Kind)
}

func parseComparison(rawOp, rawType, rawValue string) (domain.Op, domain.Value, error) {
	op, err := domain.ParseOp(rawOp)
	if err != nil {
		return 0, domain.Value{}, err
	}
	vt, err := domain.ParseValueType(rawType)
	if err != nil {
		return 0, domain.Value{}, err
	}
	if op == domain.OpExists {
		return op, domain.Value{Type: vt}, nil
	}
	value, err := domain.ParseValue(vt, rawValue)
	if err != nil {
		return 0, domain.Value{}, err
	}
	return op, value, nil
}
