package presets

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envPlaceholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Loader reads the filter presets file
type Loader struct {
	filePath string
}

// NewLoader creates a new presets loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

func (l *Loader) Path() string { return l.filePath }

// Load reads and parses the presets file
func (l *Loader) Load() (PresetsConfig, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return PresetsConfig{}, fmt.Errorf("failed to read presets file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a presets document. {{VAR}} placeholders are replaced by
// the value of the environment variable VAR.
func Parse(data []byte) (PresetsConfig, error) {
	data = expandPlaceholders(data)

	var config PresetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return PresetsConfig{}, fmt.Errorf("failed to parse presets yaml: %w", err)
	}
	return config, nil
}

// expandPlaceholders substitutes environment variables into the raw YAML
// Example: {{NEXUS_REGION}} -> "eu"
func expandPlaceholders(data []byte) []byte {
	return envPlaceholder.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPlaceholder.FindSubmatch(m)[1]
		v := os.Getenv(string(name))
		return []byte(`"` + strings.ReplaceAll(v, `"`, `\"`) + `"`)
	})
}
