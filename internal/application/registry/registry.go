package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/YoshitsuguKoike/guardbroker/internal/application/port/output"
)

// CapabilityAction is the typed dispatch key for capability executors
type CapabilityAction struct {
	Capability string
	Action     string
}

func (ca CapabilityAction) String() string {
	return ca.Capability + "/" + ca.Action
}

// Registry maps a fixed set of (capability, action) pairs to executor
// implementations. Registration problems surface at startup, not as a
// runtime surprise.
type Registry struct {
	executors map[CapabilityAction]output.Executor
}

// New creates an empty registry
func New() *Registry {
	return &Registry{executors: make(map[CapabilityAction]output.Executor)}
}

// Register binds an executor to a pair. Duplicate registration is an error.
func (r *Registry) Register(capability, action string, exec output.Executor) error {
	if capability == "" || action == "" {
		return fmt.Errorf("capability and action must be non-empty")
	}
	if exec == nil {
		return fmt.Errorf("nil executor for %s/%s", capability, action)
	}
	key := CapabilityAction{Capability: capability, Action: action}
	if _, exists := r.executors[key]; exists {
		return fmt.Errorf("duplicate executor registration for %s", key)
	}
	r.executors[key] = exec
	return nil
}

// Resolve looks up the executor for a pair
func (r *Registry) Resolve(capability, action string) (output.Executor, bool) {
	exec, ok := r.executors[CapabilityAction{Capability: capability, Action: action}]
	return exec, ok
}

// Pairs returns all registered pairs, sorted for deterministic output
func (r *Registry) Pairs() []CapabilityAction {
	pairs := make([]CapabilityAction, 0, len(r.executors))
	for key := range r.executors {
		pairs = append(pairs, key)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].String() < pairs[j].String()
	})
	return pairs
}

// Validate checks every registered pair against the classifier's table.
// The classifier keeps a conservative default for unknown pairs at
// route time, but a registered executor without an explicit risk rule
// is a wiring mistake and refuses startup.
func (r *Registry) Validate(known func(capability, action string) bool) error {
	var missing []string
	for _, pair := range r.Pairs() {
		if !known(pair.Capability, pair.Action) {
			missing = append(missing, pair.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("executors registered without risk rules: %s", strings.Join(missing, ", "))
	}
	return nil
}
