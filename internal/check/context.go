package check

import (
	"encoding/json"
	"maps"

	"github.com/spf13/cast"
)

// RunContext is mutable state shared by every check of a single run. Checks
// see values written by checks that ran before them.
type RunContext struct {
	capabilities map[string]bool
	values       map[string]any
}

func NewRunContext() *RunContext {
	return &RunContext{
		capabilities: make(map[string]bool),
		values:       make(map[string]any),
	}
}

// SetCapability records whether the backend offers a named capability.
func (rc *RunContext) SetCapability(name string, available bool) {
	rc.capabilities[name] = available
}

// Capability returns the recorded availability and whether it was recorded.
func (rc *RunContext) Capability(name string) (available, known bool) {
	available, known = rc.capabilities[name]
	return available, known
}

func (rc *RunContext) Set(key string, value any) {
	rc.values[key] = value
}

func (rc *RunContext) Get(key string) (any, bool) {
	v, ok := rc.values[key]
	return v, ok
}

// Int64 returns the value under key converted to int64.
func (rc *RunContext) Int64(key string) (int64, bool) {
	v, ok := rc.values[key]
	if !ok {
		return 0, false
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Capabilities returns a copy of the recorded capabilities.
func (rc *RunContext) Capabilities() map[string]bool {
	return maps.Clone(rc.capabilities)
}

// Values returns a copy of the stored values.
func (rc *RunContext) Values() map[string]any {
	return maps.Clone(rc.values)
}

func (rc *RunContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Capabilities map[string]bool `json:"capabilities"`
		Values       map[string]any  `json:"values"`
	}{rc.capabilities, rc.values})
}
