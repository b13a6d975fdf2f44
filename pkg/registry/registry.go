// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed triggers.json
var builtinTriggers []byte

// Default returns the registry compiled into the binary.
func Default() (*TriggerRegistry, error) {
	return parse(builtinTriggers)
}

func LoadRegistry(path string) (*TriggerRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*TriggerRegistry, error) {
	var reg TriggerRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode trigger registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks that each event has exactly one trigger with every surface address set.
func (r *TriggerRegistry) Validate() error {
	seen := map[Event]bool{}
	for _, t := range r.Triggers {
		if t.Event != EventCreated && t.Event != EventUpdated {
			return fmt.Errorf("trigger %q: unknown event %q", t.ID, t.Event)
		}
		if seen[t.Event] {
			return fmt.Errorf("trigger %q: duplicate event %q", t.ID, t.Event)
		}
		seen[t.Event] = true
		if t.TaskType == "" || t.Subject == "" || t.Route == "" {
			return fmt.Errorf("trigger %q: taskType, subject and route are required", t.ID)
		}
		if len(t.InputSchema) == 0 {
			return fmt.Errorf("trigger %q: inputSchema is required", t.ID)
		}
	}
	for _, e := range []Event{EventCreated, EventUpdated} {
		if !seen[e] {
			return fmt.Errorf("no trigger registered for event %q", e)
		}
	}
	return nil
}

func (r *TriggerRegistry) Find(event Event) (Trigger, bool) {
	for _, t := range r.Triggers {
		if t.Event == event {
			return t, true
		}
	}
	return Trigger{}, false
}
