package severity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Severity is the normalized importance level of an entry
type Severity string

const (
	Emergency Severity = "emergency"
	Alert     Severity = "alert"
	Critical  Severity = "critical"
	Error     Severity = "error"
	Warning   Severity = "warning"
	Notice    Severity = "notice"
	Info      Severity = "info"
	Debug     Severity = "debug"
	// Default is returned for levels with no mapping
	Default Severity = "default"
)

const (
	minBucket = 10
	maxBucket = 60
)

var known = map[Severity]bool{
	Emergency: true,
	Alert:     true,
	Critical:  true,
	Error:     true,
	Warning:   true,
	Notice:    true,
	Info:      true,
	Debug:     true,
	Default:   true,
}

// Parse validates a severity name, case-insensitively
func Parse(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !known[sev] {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// DefaultMap returns a fresh copy of the pino level mapping
func DefaultMap() map[string]Severity {
	return map[string]Severity{
		"10":    Debug,
		"trace": Debug,
		"20":    Debug,
		"debug": Debug,
		"30":    Info,
		"info":  Info,
		"40":    Warning,
		"warn":  Warning,
		"50":    Error,
		"error": Error,
		"60":    Critical,
		"fatal": Critical,
	}
}

// Map converts source levels to severities. It is read-only after NewMap.
type Map struct {
	levels map[string]Severity
}

// NewMap overlays overrides on the default mapping. Keys are either level
// tokens or the decimal tenth buckets ("10" ... "60").
func NewMap(overrides map[string]Severity) *Map {
	levels := DefaultMap()
	for k, v := range overrides {
		// unknown severities would break the closed set
		if known[v] {
			levels[k] = v
		}
	}
	return &Map{levels: levels}
}

// Severity maps a numeric or symbolic level. Absent and unmapped levels
// yield Default.
func (m *Map) Severity(level interface{}) Severity {
	key, ok := levelKey(level)
	if !ok {
		return Default
	}
	if sev, ok := m.levels[key]; ok {
		return sev
	}
	return Default
}

func levelKey(level interface{}) (string, bool) {
	switch v := level.(type) {
	case string:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return "", false
		}
		return bucket(f), true
	case float64:
		return bucket(v), true
	case float32:
		return bucket(float64(v)), true
	case int:
		return bucket(float64(v)), true
	case int8:
		return bucket(float64(v)), true
	case int16:
		return bucket(float64(v)), true
	case int32:
		return bucket(float64(v)), true
	case int64:
		return bucket(float64(v)), true
	case uint:
		return bucket(float64(v)), true
	case uint8:
		return bucket(float64(v)), true
	case uint16:
		return bucket(float64(v)), true
	case uint32:
		return bucket(float64(v)), true
	case uint64:
		return bucket(float64(v)), true
	}
	return "", false
}

// bucket rounds down to the nearest tenth and clamps to [10,60]
func bucket(level float64) string {
	if math.IsNaN(level) {
		return strconv.Itoa(minBucket)
	}
	b := math.Floor(level/10) * 10
	if b < minBucket {
		b = minBucket
	} else if b > maxBucket {
		b = maxBucket
	}
	return strconv.Itoa(int(b))
}
