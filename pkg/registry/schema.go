// pkg/registry/schema.go
package registry

// Event names the alert write a trigger reacts to.
type Event string

const (
	EventCreated Event = "created"
	EventUpdated Event = "updated"
)

type TriggerRegistry struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	Triggers    []Trigger `json:"triggers"`
}

// Trigger describes one lifecycle reaction and how each surface addresses it.
// Subject is relative to the configured NATS subject prefix.
type Trigger struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"displayName"`
	Description  string                 `json:"description"`
	Event        Event                  `json:"event"`
	TaskType     string                 `json:"taskType"`
	Subject      string                 `json:"subject"`
	Route        string                 `json:"route"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
	ErrorCodes   []string               `json:"errorCodes"`
}
