package scenarios

import (
	"collapse/internal/collapse"
	"collapse/internal/mangle"
)

// Basic is the budget-approval scenario: Alice emails Bob, then tells him the
// budget was approved.
func Basic() (*Scenario, error) {
	ctx := collapse.NewContext()
	ctx.Entities = map[string]collapse.Entity{
		"Alice":   {Type: "Person", Gender: "F"},
		"Bob":     {Type: "Person", Gender: "M"},
		"budget":  {Type: "Document", Status: "pending"},
		"meeting": {Type: "Event", Tense: collapse.TensePast},
	}
	ctx.Plans = []collapse.Plan{
		{Step: 1, Action: "email", Agent: "Alice", Recipient: "Bob", Tense: collapse.TensePast},
		{Step: 2, Action: "tell", Agent: "Alice", Recipient: "Bob", Content: "that the budget was approved", Tense: collapse.TensePast},
	}
	ctx.Discourse = collapse.Discourse{Time: collapse.TensePast, LastPersonMale: "Bob"}

	grammar := CategoryKernel("grammar",
		map[int]string{
			0: "Subject", 1: "V_COMM_PAST", 2: "ObjectPerson", 3: "CoordinatorOrEnd",
			4: "V_REPORT_PAST", 5: "PronounObj", 6: "Complementizer", 7: "Det",
			8: "DocNoun", 9: "AuxPast", 10: "Participle", 11: "PunctEnd",
		},
		map[string][]string{
			"Subject":          {"Alice", "Bob"},
			"V_COMM_PAST":      {"emailed", "called", "texted"},
			"ObjectPerson":     {"Bob", "Alice"},
			"CoordinatorOrEnd": {"and", "."},
			"V_REPORT_PAST":    {"told", "informed", "notified"},
			"PronounObj":       {"him", "her"},
			"Complementizer":   {"that", "because"},
			"Det":              {"the", "a"},
			"DocNoun":          {"budget", "proposal", "report"},
			"AuxPast":          {"was"},
			"Participle":       {"approved", "rejected"},
			"PunctEnd":         {"."},
		},
	)

	tense := ForbidKernel("tense", TenseRule{
		When:   collapse.TensePast,
		Tokens: []string{"is", "approve", "approves"},
		Tag:    "tense:must_be_past",
		OKTag:  "tense:ok",
		NATag:  "tense:na",
	})

	return &Scenario{
		Name:        "basic",
		Description: "budget approval: email then report",
		Expected:    "Alice emailed Bob and told him that the budget was approved .",
		Context:     ctx,
		Kernels:     collapse.KernelSet{grammar, basicRoles(), tense},
		Steps: [][]string{
			{"Alice", "Bob"},
			{"emailed", "called", "texted"},
			{"Bob", "Alice"},
			{"and", "."},
			{"told", "informed", "notified"},
			{"him", "her"},
			{"that", "because"},
			{"the", "a"},
			{"budget", "proposal", "report"},
			{"was", "is"},
			{"approved", "rejected", "approve"},
			{".", "!"},
		},
		Bookkeeping: []collapse.Bookkeeping{collapse.AdvancePlanAfter(2, 2)},
	}, nil
}

// basicRoles checks semantic roles against the first plan and the discourse.
func basicRoles() collapse.Kernel {
	fixed := map[int]Requirement{
		3:  {Token: "and", Tag: "role:continue_plan_with_and"},
		6:  {Token: "that", Tag: "role:content_that"},
		7:  {Token: "the", Tag: "role:definite_budget"},
		8:  {Token: "budget", Tag: "role:doc_is_budget"},
		9:  {Token: "was", Tag: "role:aux_past"},
		10: {Token: "approved", Tag: "role:predicate_approved"},
	}
	comm := toSet([]string{"emailed", "called", "texted"})
	report := toSet([]string{"told", "informed", "notified"})

	return collapse.NewKernel("role", func(step int, tok string, ctx *collapse.Context) (bool, string) {
		plan, _ := ctx.Plan(0)
		switch step {
		case 0:
			return tok == plan.Agent, "role:agent_must_be_" + plan.Agent
		case 1:
			return comm[tok], "role:comm_verb"
		case 2:
			return tok == plan.Recipient, "role:recipient_must_be_" + plan.Recipient
		case 4:
			return report[tok], "role:reporting_verb"
		case 5:
			male := ctx.Discourse.LastPersonMale
			return tok == "him" && male == plan.Recipient, "role:pronoun_binds_to_" + plan.Recipient
		}
		if req, ok := fixed[step]; ok {
			return tok == req.Token, req.Tag
		}
		return true, "role:any"
	}, collapse.FieldPlans, collapse.FieldDiscourse)
}

// Coref resolves a female pronoun to the CEO in past tense.
func Coref() (*Scenario, error) {
	ctx := collapse.NewContext()
	ctx.Entities = map[string]collapse.Entity{
		"CEO":     {Type: "Person", Gender: "F"},
		"board":   {Type: "Organization"},
		"results": {Type: "Report"},
	}
	ctx.Discourse = collapse.Discourse{Time: collapse.TensePast, LastPersonFemale: "CEO"}

	return &Scenario{
		Name:        "coref",
		Description: "coreference: female pronoun bound to the CEO",
		Expected:    "She presented the results .",
		Context:     ctx,
		Kernels: collapse.KernelSet{
			StepKernel("grammar", [][]string{
				{"She", "He", "They"},
				{"presented", "presents"},
				{"the", "a"},
				{"results", "budget", "report"},
				{"."},
			}),
			RequireKernel("coref", map[int]Requirement{0: {Token: "She", Tag: "coref:female_she"}}, "coref:any"),
			ForbidKernel("tense", TenseRule{
				When: collapse.TensePast, Tokens: []string{"presents"}, Tag: "tense:must_be_past", OKTag: "tense:ok",
			}),
			RequireKernel("definiteness", map[int]Requirement{2: {Token: "the", Tag: "role:definite_results"}}, "role:any"),
			RequireKernel("content", map[int]Requirement{3: {Token: "results", Tag: "role:present_results"}}, "role:any"),
		},
		Steps: [][]string{
			{"She", "He", "They"},
			{"presented", "presents"},
			{"the", "a"},
			{"results", "budget", "report"},
			{".", "!"},
		},
	}, nil
}

// Tense keeps a two-clause sentence consistently in the past.
func Tense() (*Scenario, error) {
	ctx := collapse.NewContext()
	ctx.Entities = map[string]collapse.Entity{
		"team":    {Type: "Group"},
		"project": {Type: "WorkItem"},
	}
	ctx.Discourse = collapse.Discourse{Time: collapse.TensePast}

	return &Scenario{
		Name:        "tense",
		Description: "tense consistency with a definite singular object",
		Expected:    "the team completed the project and celebrated .",
		Context:     ctx,
		Kernels: collapse.KernelSet{
			StepKernel("grammar", [][]string{
				{"the"},
				{"team"},
				{"completed", "completes", "complete"},
				{"the", "a"},
				{"project", "projects"},
				{"and"},
				{"celebrated", "celebrates"},
				{"."},
			}),
			ForbidKernel("tense", TenseRule{
				When: collapse.TensePast, Tokens: []string{"completes", "complete", "celebrates"}, Tag: "tense:must_be_past", OKTag: "tense:ok",
			}),
			RequireKernel("roles", map[int]Requirement{4: {Token: "project", Tag: "role:singular_object"}}, "role:any"),
			RequireKernel("definiteness", map[int]Requirement{3: {Token: "the", Tag: "role:definite_object"}}, "role:any"),
		},
		Steps: [][]string{
			{"the"},
			{"team"},
			{"completed", "completes", "complete"},
			{"the", "a"},
			{"project", "projects"},
			{"and"},
			{"celebrated", "celebrates"},
			{".", "!"},
		},
	}, nil
}

// Capitals is the kb scenario's fact table.
var Capitals = map[string]map[string]string{
	"capital_of": {
		"France":  "Paris",
		"Germany": "Berlin",
		"Spain":   "Madrid",
	},
}

// KB picks the country whose capital is the focus city. The capital table
// lives in a Mangle fact store.
func KB() (*Scenario, error) {
	facts, err := mangle.NewFactTable(mangle.DefaultConfig(), Capitals)
	if err != nil {
		return nil, err
	}

	ctx := collapse.NewContext()
	ctx.Facts = facts
	ctx.Focus = "Paris"
	ctx.Discourse = collapse.Discourse{Time: collapse.TensePresent}

	return &Scenario{
		Name:        "kb",
		Description: "domain facts: country for the focus capital",
		Expected:    "France .",
		Context:     ctx,
		Kernels: collapse.KernelSet{
			StepKernel("grammar", [][]string{
				{"France", "Germany", "Spain"},
				{"."},
			}),
			FactKernel("fact", "capital_of", []int{0}, "kb:city_matches_country", "kb:any"),
		},
		Steps: [][]string{
			{"France", "Germany", "Spain"},
			{".", "!"},
		},
	}, nil
}
