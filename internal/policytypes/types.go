// Package policytypes defines the data model the policy loader, index, and
// evaluator all share: PolicyFile as parsed from YAML, and PolicySet as the
// immutable, fingerprinted snapshot the rest of the gateway reads.
package policytypes

// Condition is the closed sum of recognized per-permission checks (§4.4).
// Built once at load time from the raw YAML condition map; the evaluator
// never re-inspects interface{} values on the hot path.
type Condition interface {
	// Name identifies the condition for deterministic ordering during
	// evaluation (§4.4: "evaluated in a fixed canonical order").
	Name() string
}

// conditionOrder is the fixed canonical evaluation order from §4.4.
var conditionOrder = []string{"max_amount", "currencies", "folder_prefix"}

// ConditionOrder returns the canonical evaluation order.
func ConditionOrder() []string {
	return conditionOrder
}

type MaxAmount struct {
	Value float64
}

func (MaxAmount) Name() string { return "max_amount" }

type Currencies struct {
	Set map[string]struct{}
}

func (Currencies) Name() string { return "currencies" }

func (c Currencies) Has(currency string) bool {
	_, ok := c.Set[currency]
	return ok
}

type FolderPrefix struct {
	Prefix string
}

func (FolderPrefix) Name() string { return "folder_prefix" }

// Permission is one `tool -> actions` rule within an AgentRule.
type Permission struct {
	Tool            string
	Actions         map[string]struct{}
	Conditions      map[string]Condition
	RequireApproval bool
}

// HasAction reports whether action is in Actions.
func (p Permission) HasAction(action string) bool {
	_, ok := p.Actions[action]
	return ok
}

// AgentRule is the canonicalized, normalized form of one YAML agent block.
type AgentRule struct {
	ID               string
	AllowOnlyParents map[string]struct{} // nil means unset
	DenyIfParent     map[string]struct{} // nil/empty means unset
	Permissions      []Permission        // order preserved, first-match wins
}

// SourceInfo records provenance for one loaded policy file (admin introspection).
type SourceInfo struct {
	Path       string
	Version    int
	AgentCount int
}

// PolicySet is an immutable, published snapshot of the effective rule set.
// Never mutate a PolicySet in place — the Policy Index publishes by swapping
// a pointer to a brand new one (§9 "Snapshot publication").
type PolicySet struct {
	Agents             map[string]AgentRule
	VersionFingerprint string
	Sources            []SourceInfo
}

// Lookup returns the rule for agentID, or false if the agent is unknown.
func (p *PolicySet) Lookup(agentID string) (AgentRule, bool) {
	if p == nil {
		return AgentRule{}, false
	}
	rule, ok := p.Agents[agentID]
	return rule, ok
}

// AgentIDs returns the agent ids in the snapshot, for admin listing.
func (p *PolicySet) AgentIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Agents))
	for id := range p.Agents {
		ids = append(ids, id)
	}
	return ids
}

// Empty returns an empty-but-valid PolicySet, used before the first
// successful load and when every source file fails validation.
func Empty() *PolicySet {
	return &PolicySet{
		Agents:             map[string]AgentRule{},
		VersionFingerprint: fingerprintOf(nil),
		Sources:            nil,
	}
}
