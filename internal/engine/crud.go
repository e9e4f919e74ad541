package engine

import (
	"context"
	"fmt"
	"log/slog"

	"flock-sentinel/internal/catalog"
	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"

	"github.com/google/uuid"
)

// Stored rules are never mutated in place. Every change swaps in a fresh
// copy so evaluations holding the previous pointer are unaffected.

// AddCustomRule validates and admits a custom literal rule. An empty ID is
// assigned. The stored rule is returned.
func (e *Engine) AddCustomRule(rule rules.LiteralRule) (rules.LiteralRule, error) {
	if rule.ID == "" {
		rule.ID = "custom-" + uuid.NewString()
	}
	rule.Source = rules.SourceCustom
	rule.Category = ""
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.now().UTC()
	}
	if err := rule.Validate(); err != nil {
		return rules.LiteralRule{}, err
	}

	e.mu.Lock()
	if e.idInUse(rule.ID) {
		e.mu.Unlock()
		return rules.LiteralRule{}, fmt.Errorf("%w: %s", rules.ErrDuplicateID, rule.ID)
	}
	stored := rule
	e.custom = append(e.custom, &stored)
	e.mu.Unlock()

	slog.Info("added custom rule", "rule_id", rule.ID, "domain", rule.Domain, "kind", rule.Kind)
	e.changed(Change{Op: ChangeAdded, Target: TargetCustom, ID: rule.ID, Enabled: rule.Enabled})
	return rule, nil
}

// UpdateCustomRule replaces an existing custom rule. The creation time is
// kept when the update leaves it unset.
func (e *Engine) UpdateCustomRule(rule rules.LiteralRule) (rules.LiteralRule, error) {
	rule.Source = rules.SourceCustom
	rule.Category = ""

	e.mu.Lock()
	i := indexLiteral(e.custom, rule.ID)
	if i < 0 {
		e.mu.Unlock()
		return rules.LiteralRule{}, fmt.Errorf("%w: %s", rules.ErrNotFound, rule.ID)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.custom[i].CreatedAt
	}
	if err := rule.Validate(); err != nil {
		e.mu.Unlock()
		return rules.LiteralRule{}, err
	}
	stored := rule
	e.custom[i] = &stored
	e.mu.Unlock()

	slog.Info("updated custom rule", "rule_id", rule.ID)
	e.changed(Change{Op: ChangeUpdated, Target: TargetCustom, ID: rule.ID, Enabled: rule.Enabled})
	return rule, nil
}

// DeleteCustomRule removes a custom rule.
func (e *Engine) DeleteCustomRule(id string) error {
	e.mu.Lock()
	i := indexLiteral(e.custom, id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", rules.ErrNotFound, id)
	}
	e.custom = append(e.custom[:i:i], e.custom[i+1:]...)
	e.mu.Unlock()

	slog.Info("deleted custom rule", "rule_id", id)
	e.changed(Change{Op: ChangeDeleted, Target: TargetCustom, ID: id})
	return nil
}

// ToggleCustomRule enables or disables a custom rule.
func (e *Engine) ToggleCustomRule(id string, enabled bool) error {
	e.mu.Lock()
	i := indexLiteral(e.custom, id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", rules.ErrNotFound, id)
	}
	stored := *e.custom[i]
	stored.Enabled = enabled
	e.custom[i] = &stored
	e.mu.Unlock()

	e.changed(Change{Op: ChangeToggled, Target: TargetCustom, ID: id, Enabled: enabled})
	return nil
}

// CustomRule returns a custom rule by ID.
func (e *Engine) CustomRule(id string) (rules.LiteralRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := indexLiteral(e.custom, id); i >= 0 {
		return *e.custom[i], true
	}
	return rules.LiteralRule{}, false
}

// CustomRules returns every custom rule in insertion order.
func (e *Engine) CustomRules() []rules.LiteralRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyLiteral(e.custom)
}

// BuiltinRules returns the built-in catalog rules.
func (e *Engine) BuiltinRules() []rules.LiteralRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyLiteral(e.builtin)
}

// AddHeuristicRule validates and admits a heuristic rule. An empty ID is
// assigned. The stored rule is returned.
func (e *Engine) AddHeuristicRule(rule rules.HeuristicRule) (rules.HeuristicRule, error) {
	if rule.ID == "" {
		rule.ID = "heuristic-" + uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.now().UTC()
	}
	if err := rule.Validate(); err != nil {
		return rules.HeuristicRule{}, err
	}
	stored := cloneHeuristic(rule)

	e.mu.Lock()
	if e.idInUse(rule.ID) {
		e.mu.Unlock()
		return rules.HeuristicRule{}, fmt.Errorf("%w: %s", rules.ErrDuplicateID, rule.ID)
	}
	e.heuristic = append(e.heuristic, &stored)
	e.mu.Unlock()

	slog.Info("added heuristic rule", "rule_id", rule.ID, "domain", rule.Domain, "conditions", len(rule.Conditions))
	e.changed(Change{Op: ChangeAdded, Target: TargetHeuristic, ID: rule.ID, Enabled: rule.Enabled})
	return cloneHeuristic(stored), nil
}

// UpdateHeuristicRule replaces an existing heuristic rule. Its cooldown
// history is kept.
func (e *Engine) UpdateHeuristicRule(rule rules.HeuristicRule) (rules.HeuristicRule, error) {
	e.mu.Lock()
	i := indexHeuristic(e.heuristic, rule.ID)
	if i < 0 {
		e.mu.Unlock()
		return rules.HeuristicRule{}, fmt.Errorf("%w: %s", rules.ErrNotFound, rule.ID)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.heuristic[i].CreatedAt
	}
	if err := rule.Validate(); err != nil {
		e.mu.Unlock()
		return rules.HeuristicRule{}, err
	}
	stored := cloneHeuristic(rule)
	e.heuristic[i] = &stored
	e.mu.Unlock()

	slog.Info("updated heuristic rule", "rule_id", rule.ID)
	e.changed(Change{Op: ChangeUpdated, Target: TargetHeuristic, ID: rule.ID, Enabled: rule.Enabled})
	return cloneHeuristic(stored), nil
}

// DeleteHeuristicRule removes a heuristic rule.
func (e *Engine) DeleteHeuristicRule(id string) error {
	e.mu.Lock()
	i := indexHeuristic(e.heuristic, id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", rules.ErrNotFound, id)
	}
	e.heuristic = append(e.heuristic[:i:i], e.heuristic[i+1:]...)
	e.mu.Unlock()

	// A rule re-created under the same id starts without a cooldown.
	if err := e.tracker.Reset(context.Background(), id); err != nil {
		slog.Warn("failed to clear cooldown of deleted rule", "rule_id", id, "error", err)
	}
	slog.Info("deleted heuristic rule", "rule_id", id)
	e.changed(Change{Op: ChangeDeleted, Target: TargetHeuristic, ID: id})
	return nil
}

// ToggleHeuristicRule enables or disables a heuristic rule.
func (e *Engine) ToggleHeuristicRule(id string, enabled bool) error {
	e.mu.Lock()
	i := indexHeuristic(e.heuristic, id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", rules.ErrNotFound, id)
	}
	stored := *e.heuristic[i]
	stored.Enabled = enabled
	e.heuristic[i] = &stored
	e.mu.Unlock()

	e.changed(Change{Op: ChangeToggled, Target: TargetHeuristic, ID: id, Enabled: enabled})
	return nil
}

// HeuristicRule returns a heuristic rule by ID.
func (e *Engine) HeuristicRule(id string) (rules.HeuristicRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := indexHeuristic(e.heuristic, id); i >= 0 {
		return cloneHeuristic(*e.heuristic[i]), true
	}
	return rules.HeuristicRule{}, false
}

// HeuristicRules returns every heuristic rule in insertion order.
func (e *Engine) HeuristicRules() []rules.HeuristicRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]rules.HeuristicRule, 0, len(e.heuristic))
	for _, r := range e.heuristic {
		out = append(out, cloneHeuristic(*r))
	}
	return out
}

// ToggleCategory enables or disables every built-in rule of a category.
func (e *Engine) ToggleCategory(name string, enabled bool) error {
	e.mu.Lock()
	if _, ok := e.categories[name]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	e.categories[name] = enabled
	e.mu.Unlock()

	slog.Info("toggled category", "category", name, "enabled", enabled)
	e.changed(Change{Op: ChangeToggled, Target: TargetCategory, ID: name, Enabled: enabled})
	return nil
}

// CategoryEnabled reports the toggle of a category.
func (e *Engine) CategoryEnabled(name string) (enabled, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	enabled, ok = e.categories[name]
	return enabled, ok
}

// Categories returns every catalog category with its current toggle.
func (e *Engine) Categories() []CategoryState {
	counts := make(map[string]int)
	e.mu.RLock()
	for _, r := range e.builtin {
		counts[r.Category]++
	}
	state := make(map[string]bool, len(e.categories))
	for k, v := range e.categories {
		state[k] = v
	}
	e.mu.RUnlock()

	cats := catalog.Categories()
	out := make([]CategoryState, 0, len(cats))
	for _, c := range cats {
		out = append(out, CategoryState{
			Name:        c.Name,
			Description: c.Description,
			Domains:     c.Domains,
			Enabled:     state[c.Name],
			Rules:       counts[c.Name],
		})
	}
	return out
}

// LoadRuleSet replaces the custom and heuristic rule stores and applies the
// category toggles in rs. Categories rs does not mention keep their current
// state. The whole set is validated before anything is replaced. Listeners
// see ChangeLoaded; use it for state read back from the rule store.
func (e *Engine) LoadRuleSet(rs *rules.RuleSet) error {
	return e.replaceRuleSet(rs, ChangeLoaded)
}

// ImportRuleSet is LoadRuleSet for rule sets that did not come from the
// rule store. Listeners see ChangeImported, so the result is persisted.
func (e *Engine) ImportRuleSet(rs *rules.RuleSet) error {
	return e.replaceRuleSet(rs, ChangeImported)
}

func (e *Engine) replaceRuleSet(rs *rules.RuleSet, op ChangeOp) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	for name := range rs.Categories {
		if _, ok := catalog.LookupCategory(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, name)
		}
	}

	custom := make([]*rules.LiteralRule, 0, len(rs.Literal))
	for _, r := range rs.Literal {
		rule := r
		rule.Source = rules.SourceCustom
		rule.Category = ""
		custom = append(custom, &rule)
	}
	heur := make([]*rules.HeuristicRule, 0, len(rs.Heuristic))
	for _, r := range rs.Heuristic {
		rule := cloneHeuristic(r)
		heur = append(heur, &rule)
	}

	e.mu.Lock()
	for _, r := range custom {
		if indexLiteral(e.builtin, r.ID) >= 0 {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s", rules.ErrDuplicateID, r.ID)
		}
	}
	for _, r := range heur {
		if indexLiteral(e.builtin, r.ID) >= 0 {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s", rules.ErrDuplicateID, r.ID)
		}
	}
	e.custom = custom
	e.heuristic = heur
	for name, enabled := range rs.Categories {
		e.categories[name] = enabled
	}
	e.mu.Unlock()

	e.updateRuleGauges()
	slog.Info("loaded rule set", "op", op, "custom", len(custom), "heuristic", len(heur), "categories", len(rs.Categories))
	e.notify(Change{Op: op, Target: TargetAll})
	return nil
}

// Snapshot returns the persistable rule state: custom rules, heuristic rules
// and every category toggle.
func (e *Engine) Snapshot() *rules.RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rs := &rules.RuleSet{
		Version:    rules.RuleSetVersion,
		Literal:    copyLiteral(e.custom),
		Heuristic:  make([]rules.HeuristicRule, 0, len(e.heuristic)),
		Categories: make(map[string]bool, len(e.categories)),
	}
	for _, r := range e.heuristic {
		rs.Heuristic = append(rs.Heuristic, cloneHeuristic(*r))
	}
	for k, v := range e.categories {
		rs.Categories[k] = v
	}
	return rs
}

// ResetCooldown clears the cooldown history of the given heuristic rules, or
// of every rule when none are given. The literal dedup window is cleared
// along with a full reset.
func (e *Engine) ResetCooldown(ctx context.Context, ruleIDs ...string) error {
	if err := e.tracker.Reset(ctx, ruleIDs...); err != nil {
		return fmt.Errorf("failed to reset cooldowns: %w", err)
	}
	if len(ruleIDs) == 0 && e.dedup != nil {
		e.dedup.reset()
	}
	slog.Info("reset cooldowns", "rules", len(ruleIDs))
	return nil
}

// TestPattern compiles pattern and matches value against it with the same
// compiled cache and semantics as live evaluation.
func (e *Engine) TestPattern(kind matcher.Kind, pattern, value string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %q", rules.ErrUnknownKind, kind)
	}
	p, err := e.patterns.Get(kind, pattern)
	if err != nil {
		return false, fmt.Errorf("%w: %v", rules.ErrPatternSyntax, err)
	}
	return p.Match(value), nil
}

// idInUse reports whether id names any stored rule. Caller holds mu.
func (e *Engine) idInUse(id string) bool {
	return indexLiteral(e.builtin, id) >= 0 ||
		indexLiteral(e.custom, id) >= 0 ||
		indexHeuristic(e.heuristic, id) >= 0
}

// changed refreshes gauges and notifies listeners of a single mutation.
func (e *Engine) changed(c Change) {
	if c.Op == ChangeAdded || c.Op == ChangeDeleted {
		e.updateRuleGauges()
	}
	e.notify(c)
}

func (e *Engine) notify(c Change) {
	e.mu.RLock()
	listeners := append([]ChangeListener(nil), e.listeners...)
	e.mu.RUnlock()
	for _, l := range listeners {
		l(c)
	}
}

func indexLiteral(list []*rules.LiteralRule, id string) int {
	for i, r := range list {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func indexHeuristic(list []*rules.HeuristicRule, id string) int {
	for i, r := range list {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func copyLiteral(list []*rules.LiteralRule) []rules.LiteralRule {
	out := make([]rules.LiteralRule, 0, len(list))
	for _, r := range list {
		out = append(out, *r)
	}
	return out
}

// cloneHeuristic deep-copies the condition list so callers cannot reach the
// stored rule.
func cloneHeuristic(r rules.HeuristicRule) rules.HeuristicRule {
	conds := make([]rules.Condition, len(r.Conditions))
	for i, c := range r.Conditions {
		if c.Secondary != nil {
			c.Secondary = rules.StringPtr(*c.Secondary)
		}
		conds[i] = c
	}
	r.Conditions = conds
	return r
}
