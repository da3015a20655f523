// Package registry holds the compiled-in process definitions and the defect
// classification table consulted by conditional steps.
package registry

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/qcline/qcline/pkg/models"
)

// SchemaVersion tags drafts with the shape of the step chains that produced
// them. Bump it whenever any chain's shape changes so stale drafts are
// discarded on load instead of being resurrected against a different chain.
const SchemaVersion = 1

// Registry is an immutable set of process definitions. It is safe for
// concurrent use without synchronization.
type Registry struct {
	processes map[string]*models.ProcessDefinition
	order     []string
}

// New compiles the built-in process definitions, validating each chain's
// shape and the one-photo-flag invariant.
func New() (*Registry, error) {
	validate := validator.New()

	r := &Registry{
		processes: make(map[string]*models.ProcessDefinition),
	}

	for _, def := range processDefinitions() {
		err := validate.Struct(def)
		if err != nil {
			return nil, fmt.Errorf("invalid process definition %q: %w", def.Name, err)
		}

		for i := range def.Steps {
			step := &def.Steps[i]
			if step.PhotoAlways && step.PhotoOnDefect {
				return nil, fmt.Errorf("process %q step %q: photo_always and photo_on_defect are mutually exclusive", def.Name, step.Key)
			}
		}

		if _, exists := r.processes[def.Name]; exists {
			return nil, fmt.Errorf("duplicate process definition %q", def.Name)
		}

		r.processes[def.Name] = def
		r.order = append(r.order, def.Name)
	}

	return r, nil
}

// Process returns the definition for the given process name.
func (r *Registry) Process(name string) (*models.ProcessDefinition, bool) {
	def, ok := r.processes[name]

	return def, ok
}

// Names returns the process names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}
