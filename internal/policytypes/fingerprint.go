package policytypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint computes Invariant 3's version_fingerprint: a stable hash of
// the sorted, canonicalized contents of agents, independent of file order,
// whitespace, or mtime.
func Fingerprint(agents map[string]AgentRule) string {
	return fingerprintOf(agents)
}

func fingerprintOf(agents map[string]AgentRule) string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		rule := agents[id]
		b.WriteString("agent:")
		b.WriteString(id)
		b.WriteByte('\n')
		writeSortedSet(&b, "allow_only_parents", rule.AllowOnlyParents)
		writeSortedSet(&b, "deny_if_parent", rule.DenyIfParent)
		for _, perm := range rule.Permissions {
			b.WriteString("perm:")
			b.WriteString(perm.Tool)
			b.WriteByte('\n')
			actions := make([]string, 0, len(perm.Actions))
			for a := range perm.Actions {
				actions = append(actions, a)
			}
			sort.Strings(actions)
			b.WriteString(strings.Join(actions, ","))
			b.WriteByte('\n')
			b.WriteString(fmt.Sprintf("require_approval:%v\n", perm.RequireApproval))
			writeConditions(&b, perm.Conditions)
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeSortedSet(b *strings.Builder, label string, set map[string]struct{}) {
	if set == nil {
		b.WriteString(label)
		b.WriteString(":unset\n")
		return
	}
	items := make([]string, 0, len(set))
	for v := range set {
		items = append(items, v)
	}
	sort.Strings(items)
	b.WriteString(label)
	b.WriteByte(':')
	b.WriteString(strings.Join(items, ","))
	b.WriteByte('\n')
}

func writeConditions(b *strings.Builder, conditions map[string]Condition) {
	for _, name := range ConditionOrder() {
		cond, ok := conditions[name]
		if !ok {
			continue
		}
		b.WriteString("cond:")
		b.WriteString(name)
		b.WriteByte(':')
		switch c := cond.(type) {
		case MaxAmount:
			fmt.Fprintf(b, "%v", c.Value)
		case Currencies:
			items := make([]string, 0, len(c.Set))
			for v := range c.Set {
				items = append(items, v)
			}
			sort.Strings(items)
			b.WriteString(strings.Join(items, ","))
		case FolderPrefix:
			b.WriteString(c.Prefix)
		}
		b.WriteByte('\n')
	}
}
