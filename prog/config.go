package prog

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigMap holds pipeline configuration as named keys mapping to ordered
// value lists. Values are kept as strings and parsed on access so one loader
// serves every component; list-valued keys (signal names, noise variances,
// load profiles) keep their order.
//
// YAML files may spell keys flat ("Model.event: EOD") or nested; nested
// mappings are flattened by joining key segments with dots, so both spellings
// produce the same map.
type ConfigMap map[string][]string

// LoadConfig reads and flattens a YAML configuration file.
func LoadConfig(path string) (ConfigMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cm := make(ConfigMap)
	for key, node := range root {
		if err := cm.flatten(key, node); err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return cm, nil
}

func (c ConfigMap) flatten(key string, node any) error {
	switch v := node.(type) {
	case map[string]any:
		for sub, child := range v {
			if err := c.flatten(key+"."+sub, child); err != nil {
				return err
			}
		}
	case []any:
		vals := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			vals = append(vals, s)
		}
		c[key] = vals
	default:
		s, err := scalarString(v)
		if err != nil {
			return err
		}
		c[key] = []string{s}
	}
	return nil
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// Has reports whether key is present.
func (c ConfigMap) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Set assigns string values to key, replacing any existing values.
func (c ConfigMap) Set(key string, values ...string) {
	c[key] = append([]string(nil), values...)
}

// SetFloats assigns numeric values to key.
func (c ConfigMap) SetFloats(key string, values ...float64) {
	vals := make([]string, len(values))
	for i, v := range values {
		vals[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	c[key] = vals
}

// Require reports every missing key in a single error so a misconfigured
// pipeline fails with the full list rather than one key at a time.
func (c ConfigMap) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !c.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// String returns the first value of key.
func (c ConfigMap) String(key string) (string, error) {
	vals, ok := c[key]
	if !ok || len(vals) == 0 {
		return "", fmt.Errorf("config key %q not set", key)
	}
	return vals[0], nil
}

// Strings returns a copy of all values of key.
func (c ConfigMap) Strings(key string) ([]string, error) {
	vals, ok := c[key]
	if !ok || len(vals) == 0 {
		return nil, fmt.Errorf("config key %q not set", key)
	}
	return append([]string(nil), vals...), nil
}

// Float parses the first value of key as a float64.
func (c ConfigMap) Float(key string) (float64, error) {
	s, err := c.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("config key %q: parsing %q: %w", key, s, err)
	}
	return v, nil
}

// Int parses the first value of key as an int.
func (c ConfigMap) Int(key string) (int, error) {
	s, err := c.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("config key %q: parsing %q: %w", key, s, err)
	}
	return v, nil
}

// Floats parses all values of key as float64s.
func (c ConfigMap) Floats(key string) ([]float64, error) {
	vals, err := c.Strings(key)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, s := range vals {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("config key %q: parsing %q: %w", key, s, err)
		}
		out[i] = v
	}
	return out, nil
}
