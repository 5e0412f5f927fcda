package collapse

// Tense is a discourse tense flag.
type Tense string

const (
	TensePast    Tense = "past"
	TensePresent Tense = "present"
)

// Field names a Context field a kernel may read.
type Field string

const (
	FieldEntities  Field = "entities"
	FieldPlans     Field = "plans"
	FieldDiscourse Field = "discourse"
	FieldFacts     Field = "facts"
	FieldFocus     Field = "focus"
	FieldCursor    Field = "cursor"
)

// Entity is a named participant or object known to the discourse.
type Entity struct {
	Type   string `json:"type" yaml:"type"`
	Gender string `json:"gender,omitempty" yaml:"gender,omitempty"` // "M", "F" or empty
	Status string `json:"status,omitempty" yaml:"status,omitempty"`
	Tense  Tense  `json:"tense,omitempty" yaml:"tense,omitempty"`
}

// Plan is one communicative action the sequence is expected to realize.
type Plan struct {
	Step      int    `json:"step" yaml:"step"`
	Action    string `json:"action" yaml:"action"`
	Agent     string `json:"agent" yaml:"agent"`
	Recipient string `json:"recipient" yaml:"recipient"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty"`
	Tense     Tense  `json:"tense,omitempty" yaml:"tense,omitempty"`
}

// Discourse holds the running discourse state.
type Discourse struct {
	Time             Tense  `json:"time" yaml:"time"`
	LastPersonMale   string `json:"last_person_male,omitempty" yaml:"last_person_male,omitempty"`
	LastPersonFemale string `json:"last_person_female,omitempty" yaml:"last_person_female,omitempty"`
}

// Cursor tracks progress through the plan list.
type Cursor struct {
	State    string `json:"state" yaml:"state"`
	PlanStep int    `json:"plan_step" yaml:"plan_step"`
}

// FactTable resolves relation lookups such as capital_of(Country) -> City.
type FactTable interface {
	Lookup(relation, key string) (string, bool)
}

// MapFacts is an in-memory FactTable keyed by relation then key.
type MapFacts map[string]map[string]string

// Lookup implements FactTable.
func (m MapFacts) Lookup(relation, key string) (string, bool) {
	rel, ok := m[relation]
	if !ok {
		return "", false
	}
	v, ok := rel[key]
	return v, ok
}

// Context is the semantic state threaded through a run.
//
// The harness owns it. Kernels and the Selector treat it as read-only;
// Eliminator bookkeeping and Engine discourse updates are the only writers.
type Context struct {
	Entities  map[string]Entity
	Plans     []Plan
	Discourse Discourse
	Facts     FactTable
	// Focus is the value a fact lookup must resolve to (e.g. a subject city).
	Focus  string
	Cursor Cursor
}

// NewContext returns an empty context with its cursor at the initial state.
func NewContext() *Context {
	return &Context{
		Entities: make(map[string]Entity),
		Cursor:   Cursor{State: "s0", PlanStep: 1},
	}
}

// Has reports whether the named field is populated.
func (c *Context) Has(f Field) bool {
	switch f {
	case FieldEntities:
		return len(c.Entities) > 0
	case FieldPlans:
		return len(c.Plans) > 0
	case FieldDiscourse:
		return c.Discourse.Time != ""
	case FieldFacts:
		return c.Facts != nil
	case FieldFocus:
		return c.Focus != ""
	case FieldCursor:
		return c.Cursor.State != ""
	default:
		return false
	}
}

// Plan returns the plan at index i, or false when absent.
func (c *Context) Plan(i int) (Plan, bool) {
	if i < 0 || i >= len(c.Plans) {
		return Plan{}, false
	}
	return c.Plans[i], true
}

// Clone returns a deep copy. The FactTable is shared; it is read-only.
func (c *Context) Clone() *Context {
	out := &Context{
		Entities:  make(map[string]Entity, len(c.Entities)),
		Plans:     append([]Plan(nil), c.Plans...),
		Discourse: c.Discourse,
		Facts:     c.Facts,
		Focus:     c.Focus,
		Cursor:    c.Cursor,
	}
	for name, e := range c.Entities {
		out.Entities[name] = e
	}
	return out
}
