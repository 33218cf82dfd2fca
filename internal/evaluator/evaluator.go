// Package evaluator implements the Evaluator (D): a pure, deterministic
// function from (PolicySet snapshot, Request) to Decision.
//
// Grounded on the teacher's policy.Enforcer boolean-allow shape, generalized
// into the multi-outcome Decision the spec's §4.4 algorithm requires; the
// normative step order below is taken verbatim from that algorithm.
package evaluator

import (
	"github.com/aegis-gateway/aegis/internal/policytypes"
)

// Outcome is the closed sum of terminal evaluation results.
type Outcome int

const (
	OutcomeDeny Outcome = iota
	OutcomeApprovalRequired
	OutcomeAllow
)

// Request is the inbound dispatch request the evaluator judges.
type Request struct {
	AgentID     string
	ParentAgent string // "" means absent
	Tool        string
	Action      string
	Params      map[string]interface{}
}

// Decision is the evaluator's terminal verdict.
type Decision struct {
	Outcome Outcome
	Reason  string // populated for OutcomeDeny, sanitized, user-facing

	// MatchedPermission is set for OutcomeApprovalRequired and OutcomeAllow;
	// callers need it to know which rule authorized the request.
	MatchedPermission *policytypes.Permission
}

func deny(reason string) Decision {
	return Decision{Outcome: OutcomeDeny, Reason: reason}
}

// Evaluate implements §4.4's algorithm. It never blocks and never mutates
// snapshot or req.
func Evaluate(snapshot *policytypes.PolicySet, req Request) Decision {
	rule, ok := snapshot.Lookup(req.AgentID)
	if !ok {
		return deny("unknown agent")
	}

	if d, denied := checkParents(rule, req); denied {
		return d
	}

	perm, ok := matchPermission(rule, req)
	if !ok {
		return deny("action not permitted")
	}

	if d, denied := checkConditions(perm, req.Params); denied {
		return d
	}

	if perm.RequireApproval {
		return Decision{Outcome: OutcomeApprovalRequired, MatchedPermission: &perm}
	}
	return Decision{Outcome: OutcomeAllow, MatchedPermission: &perm}
}

// checkParents implements §4.4 step 2, agent-level, before the permission scan.
func checkParents(rule policytypes.AgentRule, req Request) (Decision, bool) {
	if rule.AllowOnlyParents != nil {
		if req.ParentAgent == "" {
			return deny("parent required"), true
		}
		if _, ok := rule.AllowOnlyParents[req.ParentAgent]; !ok {
			return deny("parent not permitted"), true
		}
	}
	if rule.DenyIfParent != nil && req.ParentAgent != "" {
		if _, ok := rule.DenyIfParent[req.ParentAgent]; ok {
			return deny("parent denied"), true
		}
	}
	return Decision{}, false
}

// matchPermission implements §4.4 step 3: first declared permission whose
// tool and action both match wins. Permission order is preserved from load
// time (policyload.normalizeAgent), which is what makes this a real
// first-match tie-break rather than an arbitrary map iteration.
func matchPermission(rule policytypes.AgentRule, req Request) (policytypes.Permission, bool) {
	for _, perm := range rule.Permissions {
		if perm.Tool == req.Tool && perm.HasAction(req.Action) {
			return perm, true
		}
	}
	return policytypes.Permission{}, false
}

// checkConditions implements §4.4 step 4, evaluated in the canonical
// condition order so denial messages are deterministic regardless of the
// order conditions appeared in the source YAML map.
func checkConditions(perm policytypes.Permission, params map[string]interface{}) (Decision, bool) {
	for _, name := range policytypes.ConditionOrder() {
		cond, ok := perm.Conditions[name]
		if !ok {
			continue
		}
		switch c := cond.(type) {
		case policytypes.MaxAmount:
			amount, ok := toFloat(params["amount"])
			if !ok {
				return deny("amount required"), true
			}
			if amount > c.Value {
				return deny("amount exceeds limit"), true
			}
		case policytypes.Currencies:
			currency, ok := params["currency"].(string)
			if !ok || currency == "" {
				return deny("currency required"), true
			}
			if !c.Has(currency) {
				return deny("currency not allowed"), true
			}
		case policytypes.FolderPrefix:
			path, ok := params["path"].(string)
			if !ok || !hasPrefix(path, c.Prefix) {
				return deny("path outside allowed folder"), true
			}
		}
	}
	return Decision{}, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
