package eventstore

// Canonical event names.
const (
	RunStarted      = "run.started"
	StageEntered    = "stage.entered"
	RunCompleted    = "run.completed"
	RunError        = "run.error"
	ReviewRequested = "review.requested"
	ReviewResolved  = "review.resolved"
)

// aliases maps the agent emitter's names onto canonical ones.
var aliases = map[string]string{
	"agent.started":        RunStarted,
	"agent.node.enter":     StageEntered,
	"agent.completed":      RunCompleted,
	"agent.error":          RunError,
	"agent.hitl.requested": ReviewRequested,
	"agent.hitl.resolved":  ReviewResolved,
}

// Canonical returns the canonical name for eventType, or eventType itself
// when it has no alias.
func Canonical(eventType string) string {
	if c, ok := aliases[eventType]; ok {
		return c
	}
	return eventType
}

// Kind returns the canonical name of e's type.
func (e Event) Kind() string {
	return Canonical(e.EventType)
}
