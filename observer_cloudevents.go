package stepflow

import (
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// EventSource is the CloudEvents source attribute of every lifecycle event.
const EventSource = "stepflow"

// Lifecycle event types.
const (
	EventTypeScenarioStarted  = "com.stepflow.scenario.started"
	EventTypeScenarioDisposed = "com.stepflow.scenario.disposed"
	EventTypeBindingActivated = "com.stepflow.binding.activated"
	EventTypeStepResolved     = "com.stepflow.step.resolved"
	EventTypeStepFailed       = "com.stepflow.step.failed"
	EventTypeHookInvoked      = "com.stepflow.hook.invoked"
	EventTypeDisposeFailed    = "com.stepflow.dispose.failed"
)

// NewCloudEvent creates a new CloudEvent with a time-ordered id and the
// current time. Metadata entries become extensions.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	for key, value := range metadata {
		event.SetExtension(key, value)
	}

	return event
}

// generateEventID generates a unique identifier for CloudEvents using UUIDv7.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent runs the SDK validation and additionally requires
// lifecycle events to carry a type in the adapter's namespace.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Source() == EventSource && !strings.HasPrefix(event.Type(), "com.stepflow.") {
		return fmt.Errorf("event type %q is outside the com.stepflow namespace", event.Type())
	}
	return nil
}

// EventData decodes the JSON payload of a lifecycle event.
func EventData(event cloudevents.Event) (map[string]any, error) {
	data := map[string]any{}
	if len(event.Data()) == 0 {
		return data, nil
	}
	if err := event.DataAs(&data); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", event.Type(), err)
	}
	return data, nil
}
