// Package policyload implements the Policy Loader (A): parsing and
// validating a directory of YAML policy files into a policytypes.PolicySet.
//
// Grounded on the teacher's internal/infra/config.go LoadConfig shape (viper
// defaults + typed struct) for the "never crash on a bad input" posture, and
// on original_source/aegis/policy/engine.go's load_policies for the
// per-file drop-and-warn behavior.
package policyload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aegis-gateway/aegis/internal/policytypes"
)

// LoadWarning describes one source file that was dropped during a load.
type LoadWarning struct {
	Path   string
	Reason string
}

func (w LoadWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Reason)
}

// rawPolicyFile mirrors the YAML shape from §3; conditions and permissions
// stay untyped here and get canonicalized by normalize().
type rawPolicyFile struct {
	Version int        `yaml:"version"`
	Agents  []rawAgent `yaml:"agents"`
}

type rawAgent struct {
	ID               string         `yaml:"id"`
	AllowOnlyParents []string       `yaml:"allow_only_parents"`
	DenyIfParent     []string       `yaml:"deny_if_parent"`
	Permissions      []rawPermission `yaml:"permissions"`
	Allow            []rawPermission `yaml:"allow"` // §4.1: "also called allow"
}

type rawPermission struct {
	Tool            string                 `yaml:"tool"`
	Actions         []string               `yaml:"actions"`
	Conditions      map[string]interface{} `yaml:"conditions"`
	RequireApproval bool                   `yaml:"require_approval"`
}

// Load scans dir for *.yaml/*.yml files and compiles them into a PolicySet.
// A file that fails validation is dropped, never crashes the load (§4.1).
func Load(dir string, logger *zap.Logger) (*policytypes.PolicySet, []LoadWarning) {
	logger = logger.Named("policy-loader")

	paths, err := matchPolicyFiles(dir)
	if err != nil {
		return policytypes.Empty(), []LoadWarning{{Path: dir, Reason: err.Error()}}
	}

	// Later-loaded wins wholesale; "later" is lexical sort of source paths (§4.2).
	sort.Strings(paths)

	agents := map[string]policytypes.AgentRule{}
	sources := make([]policytypes.SourceInfo, 0, len(paths))
	var warnings []LoadWarning

	for _, path := range paths {
		rules, version, err := loadOneFile(path, logger)
		if err != nil {
			logger.Warn("dropping policy file", zap.String("path", path), zap.Error(err))
			warnings = append(warnings, LoadWarning{Path: path, Reason: err.Error()})
			continue
		}

		for _, rule := range rules {
			agents[rule.ID] = rule // later-loaded (lexically later path) wins
		}
		sources = append(sources, policytypes.SourceInfo{
			Path:       path,
			Version:    version,
			AgentCount: len(rules),
		})
	}

	fp := policytypes.Fingerprint(agents)
	return &policytypes.PolicySet{
		Agents:             agents,
		VersionFingerprint: fp,
		Sources:            sources,
	}, warnings
}

func matchPolicyFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

// loadOneFile parses and validates a single policy file, returning its
// canonicalized agent rules. Unknown condition keys are logged by
// normalizePermission and carry no trace in the returned rules.
func loadOneFile(path string, logger *zap.Logger) ([]policytypes.AgentRule, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read: %w", err)
	}

	var raw rawPolicyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("parse yaml: %w", err)
	}

	if raw.Version != 1 {
		return nil, 0, fmt.Errorf("unsupported version %d (must be 1)", raw.Version)
	}
	if len(raw.Agents) == 0 {
		return nil, 0, fmt.Errorf("agents must be a non-empty sequence")
	}

	rules := make([]policytypes.AgentRule, 0, len(raw.Agents))
	for i, a := range raw.Agents {
		rule, err := normalizeAgent(a, path, logger)
		if err != nil {
			return nil, 0, fmt.Errorf("agents[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}

	return rules, raw.Version, nil
}

func normalizeAgent(a rawAgent, path string, logger *zap.Logger) (policytypes.AgentRule, error) {
	id := strings.TrimSpace(a.ID)
	if id == "" {
		return policytypes.AgentRule{}, fmt.Errorf("id is required")
	}

	perms := a.Permissions
	if len(perms) == 0 {
		perms = a.Allow
	}
	if len(perms) == 0 {
		return policytypes.AgentRule{}, fmt.Errorf("agent %s: at least one permission required", id)
	}

	normalizedPerms := make([]policytypes.Permission, 0, len(perms))
	for i, p := range perms {
		perm, err := normalizePermission(p, path, id, logger)
		if err != nil {
			return policytypes.AgentRule{}, fmt.Errorf("agent %s permissions[%d]: %w", id, i, err)
		}
		normalizedPerms = append(normalizedPerms, perm)
	}

	return policytypes.AgentRule{
		ID:               id,
		AllowOnlyParents: toSet(a.AllowOnlyParents),
		DenyIfParent:     toSet(a.DenyIfParent),
		Permissions:      normalizedPerms,
	}, nil
}

func normalizePermission(p rawPermission, path, agentID string, logger *zap.Logger) (policytypes.Permission, error) {
	tool := strings.TrimSpace(p.Tool)
	if tool == "" {
		return policytypes.Permission{}, fmt.Errorf("tool is required")
	}
	if len(p.Actions) == 0 {
		return policytypes.Permission{}, fmt.Errorf("actions must be a non-empty list")
	}

	for key := range p.Conditions {
		if _, ok := recognizedConditionKeys[key]; !ok {
			logger.Info("ignoring unknown condition key",
				zap.String("path", path), zap.String("agent_id", agentID), zap.String("key", key))
		}
	}

	return policytypes.Permission{
		Tool:            tool,
		Actions:         toSet(dedup(p.Actions)),
		Conditions:      normalizeConditions(p.Conditions),
		RequireApproval: p.RequireApproval,
	}, nil
}

// normalizeConditions builds the closed Condition sum from the raw YAML map.
// Unknown keys are dropped here; the caller (normalizePermission) logs them
// while the raw map is still available.
func normalizeConditions(raw map[string]interface{}) map[string]policytypes.Condition {
	if len(raw) == 0 {
		return nil
	}
	out := map[string]policytypes.Condition{}

	if v, ok := raw["max_amount"]; ok {
		if f, ok := toFloat(v); ok {
			out["max_amount"] = policytypes.MaxAmount{Value: f}
		}
	}
	if v, ok := raw["currencies"]; ok {
		if items, ok := toStringSlice(v); ok {
			out["currencies"] = policytypes.Currencies{Set: toSet(items)}
		}
	}
	if v, ok := raw["folder_prefix"]; ok {
		if s, ok := v.(string); ok {
			out["folder_prefix"] = policytypes.FolderPrefix{Prefix: s}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

var recognizedConditionKeys = map[string]struct{}{
	"max_amount":    {},
	"currencies":    {},
	"folder_prefix": {},
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[strings.TrimSpace(i)] = struct{}{}
	}
	return set
}

func dedup(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, i := range items {
		i = strings.TrimSpace(i)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
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

func toStringSlice(v interface{}) ([]string, bool) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
