package collapse

import (
	"fmt"
	"strings"
)

// KernelFunc is an admissibility predicate. It returns whether token is
// admissible at the 0-based step index, and a namespaced reason tag
// ("category:detail") describing the rule.
//
// Kernels must be pure: they must not mutate ctx and must return the same
// answer for the same inputs. This is a precondition, not enforced.
type KernelFunc func(step int, token string, ctx *Context) (bool, string)

// Kernel is a named predicate with the context fields it reads.
type Kernel struct {
	Name  string
	Reads []Field
	Check KernelFunc
}

// NewKernel builds a Kernel.
func NewKernel(name string, check KernelFunc, reads ...Field) Kernel {
	return Kernel{Name: name, Reads: reads, Check: check}
}

// KernelSet is an ordered conjunction of kernels. Order only affects the
// order of reason tags in a ledger row.
type KernelSet []Kernel

// Validate checks that ctx populates every field the kernels read.
func (ks KernelSet) Validate(ctx *Context) error {
	var missing []string
	for _, k := range ks {
		for _, f := range k.Reads {
			if !ctx.Has(f) {
				missing = append(missing, fmt.Sprintf("%s reads %s", k.Name, f))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrContextShape, strings.Join(missing, ", "))
	}
	return nil
}

// Names returns the kernel names in order.
func (ks KernelSet) Names() []string {
	names := make([]string, len(ks))
	for i, k := range ks {
		names[i] = k.Name
	}
	return names
}

// ReasonCategory returns the category part of a reason tag. It exists for
// display grouping only.
func ReasonCategory(tag string) string {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		return tag[:i]
	}
	return tag
}
