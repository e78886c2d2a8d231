package models

import (
	"sort"
	"strings"
)

// Matrix fans a pipeline out into one run per combination of axis values.
// FailFast false keeps every instance fully isolated: a failing combination
// never interrupts its siblings.
type Matrix struct {
	FailFast bool                `json:"fail_fast"`
	Axes     map[string][]string `json:"axes,omitempty"`
}

// Instance is one resolved point of the matrix: axis name to chosen value.
type Instance map[string]string

// Expand returns the cartesian product of all axes in deterministic order
// (axis names sorted, values in declaration order). A matrix with no axes
// expands to a single empty instance so every pipeline yields at least one
// run.
func (m Matrix) Expand() []Instance {
	if len(m.Axes) == 0 {
		return []Instance{{}}
	}

	names := make([]string, 0, len(m.Axes))
	for name := range m.Axes {
		names = append(names, name)
	}

	sort.Strings(names)

	instances := []Instance{{}}

	for _, name := range names {
		values := m.Axes[name]
		if len(values) == 0 {
			continue
		}

		next := make([]Instance, 0, len(instances)*len(values))

		for _, base := range instances {
			for _, value := range values {
				inst := make(Instance, len(base)+1)
				for k, v := range base {
					inst[k] = v
				}

				inst[name] = value
				next = append(next, inst)
			}
		}

		instances = next
	}

	return instances
}

// Size returns the number of instances Expand will produce.
func (m Matrix) Size() int {
	size := 1

	for _, values := range m.Axes {
		if len(values) > 0 {
			size *= len(values)
		}
	}

	return size
}

// Label renders the instance as a stable "axis=value" list, suitable for
// run names and log fields.
func (i Instance) Label() string {
	if len(i) == 0 {
		return ""
	}

	names := make([]string, 0, len(i))
	for name := range i {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+i[name])
	}

	return strings.Join(parts, ",")
}
