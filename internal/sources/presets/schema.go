package presets

// PresetsConfig is the top-level structure of the presets file.
type PresetsConfig struct {
	Presets []PresetProps `yaml:"presets"`
}

// PresetProps describes one named preset
type PresetProps struct {
	Name    string        `yaml:"name"`
	Filters []FilterProps `yaml:"filters,omitempty"`
	Rules   []RuleProps   `yaml:"rules,omitempty"`
	Sort    []SortProps   `yaml:"sort,omitempty"`
}

// FilterProps is a simple key/value filter. Value is parsed according to Type.
type FilterProps struct {
	Key   string `yaml:"key"`
	Type  string `yaml:"type,omitempty"` // string | int32 | float | bool
	Value string `yaml:"value"`
	Op    string `yaml:"op,omitempty"`    // equals, !=, >, >=, <, <=, exists
	Query bool   `yaml:"query,omitempty"` // also sent as a query pre-filter
}

// RuleProps is an advanced rule. Kind selects which fields apply.
type RuleProps struct {
	Kind     string `yaml:"kind"` // ping | key_value | open_slots
	Disabled bool   `yaml:"disabled,omitempty"`

	MaxPing int `yaml:"max_ping,omitempty"` // ping
	MinOpen int `yaml:"min_open,omitempty"` // open_slots

	// key_value
	Key   string `yaml:"key,omitempty"`
	Type  string `yaml:"type,omitempty"`
	Value string `yaml:"value,omitempty"`
	Op    string `yaml:"op,omitempty"`
	Query bool   `yaml:"query,omitempty"`
}

// SortProps is one ordering rule.
type SortProps struct {
	Kind       string `yaml:"kind"` // ping | player_count
	Priority   int    `yaml:"priority"`
	Descending bool   `yaml:"descending,omitempty"`
	Disabled   bool   `yaml:"disabled,omitempty"`
}
