package quality

import (
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/meterwatch/meterwatch/pkg/errors"
)

// Bound is the expected value range for one utility type.
type Bound struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Duration wraps time.Duration so cadences read naturally in YAML ("30m").
type Duration time.Duration

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (d *Duration) UnmarshalYAML(b []byte) error {
	s := strings.Trim(string(b), `"' `)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.WrapParse("duration", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Profiles carries the utility-type-specific tuning for the extension
// rules: magnitude bounds and expected sampling cadence. Utilities absent
// from a table are simply not checked by the corresponding rule.
type Profiles struct {
	Magnitude map[string]Bound    `yaml:"magnitude"`
	Cadence   map[string]Duration `yaml:"cadence"`
}

// LoadProfiles reads a rule profile file. A missing path yields empty
// profiles, which leaves the extension rules as no-ops.
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return &Profiles{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profiles{}, nil
		}
		return nil, errors.WrapParse("yaml", path, err)
	}
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &p, nil
}
