// Package rules evaluates declarative known-issue rules against normalized
// events.
package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// ErrNoValidRules is returned by Compile when rules are required and none
// survived compilation.
var ErrNoValidRules = errors.New("no valid rules")

// InvalidRuleError identifies a rule rejected at compile time.
type InvalidRuleError struct {
	RuleID string
	Err    error
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.RuleID, e.Err)
}

func (e *InvalidRuleError) Unwrap() error { return e.Err }

// compiled is a rule ready for evaluation.
type compiled struct {
	def       model.Rule
	index     int
	component *regexp.Regexp // nil when the rule is unscoped or indexed by literal
	patterns  []*regexp.Regexp
	contains  []string // lower-cased
	sources   map[model.Source]bool
}

// Engine holds compiled rules. It is read-only after Compile and safe for
// concurrent use.
type Engine struct {
	rules   []*compiled
	byComp  map[string][]*compiled // literal component (lower-cased) → rules
	generic []*compiled
}

var validate = validator.New()

// Compile compiles defs. Rules that fail validation or carry a bad pattern
// are returned as InvalidRuleErrors and left out of the engine. When
// required is set and no rule survives, the error is ErrNoValidRules.
func Compile(defs []model.Rule, required bool) (*Engine, []*InvalidRuleError, error) {
	e := &Engine{byComp: make(map[string][]*compiled)}
	var invalid []*InvalidRuleError
	seen := make(map[string]bool, len(defs))

	for _, def := range defs {
		c, err := compile(def)
		if err == nil && seen[def.ID] {
			err = errors.New("duplicate rule id")
		}
		if err != nil {
			invalid = append(invalid, &InvalidRuleError{RuleID: def.ID, Err: err})
			continue
		}
		seen[def.ID] = true
		c.index = len(e.rules)
		e.rules = append(e.rules, c)

		if lit, ok := literal(def.Component); ok {
			key := strings.ToLower(lit)
			e.byComp[key] = append(e.byComp[key], c)
		} else {
			e.generic = append(e.generic, c)
		}
	}

	if required && len(e.rules) == 0 {
		return nil, invalid, fmt.Errorf("%w: %d rule(s) rejected", ErrNoValidRules, len(invalid))
	}
	return e, invalid, nil
}

func compile(def model.Rule) (*compiled, error) {
	if err := validate.Struct(def); err != nil {
		return nil, err
	}
	if def.Component == "" && len(def.Patterns) == 0 && len(def.Contains) == 0 {
		return nil, errors.New("rule has no component, pattern or contains clause")
	}
	if def.Severity == "" {
		def.Severity = model.SeverityMedium
	}
	if !def.Severity.Valid() {
		return nil, fmt.Errorf("unknown severity %q", def.Severity)
	}

	c := &compiled{def: def}
	if _, ok := literal(def.Component); !ok && def.Component != "" {
		re, err := regexp.Compile(`(?i)^(?:` + def.Component + `)$`)
		if err != nil {
			return nil, fmt.Errorf("component pattern: %w", err)
		}
		c.component = re
	}
	for _, p := range def.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		c.patterns = append(c.patterns, re)
	}
	for _, s := range def.Contains {
		if s == "" {
			return nil, errors.New("empty contains clause")
		}
		c.contains = append(c.contains, strings.ToLower(s))
	}
	if len(def.Sources) > 0 {
		c.sources = make(map[model.Source]bool, len(def.Sources))
		for _, src := range def.Sources {
			if src.Rank() == len(model.Sources) {
				return nil, fmt.Errorf("unknown source %q", src)
			}
			c.sources[src] = true
		}
	}
	return c, nil
}

// literal reports whether a component pattern is a plain name with no regex
// syntax. The empty pattern is not a literal.
func literal(pattern string) (string, bool) {
	if pattern == "" || regexp.QuoteMeta(pattern) != pattern {
		return "", false
	}
	return pattern, true
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int { return len(e.rules) }

// Rules returns the compiled rule definitions in definition order.
func (e *Engine) Rules() []model.Rule {
	out := make([]model.Rule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.def
	}
	return out
}

// Evaluate returns the matches for ev in rule definition order. Every rule
// is checked and fires at most once.
func (e *Engine) Evaluate(ev *model.Event) []model.RuleMatch {
	cands := e.candidates(ev.Component)
	if len(cands) == 0 {
		return nil
	}
	var lower string
	var matches []model.RuleMatch
	for _, c := range cands {
		if c.contains != nil && lower == "" {
			lower = strings.ToLower(ev.Text)
		}
		if !c.match(ev, lower) {
			continue
		}
		matches = append(matches, model.RuleMatch{
			RuleID:    c.def.ID,
			Event:     ev,
			Timestamp: ev.Timestamp,
			Severity:  c.def.Severity,
			Subsystem: c.def.Subsystem,
		})
	}
	return matches
}

// candidates merges the literal-indexed rules for component with the
// generic list, restoring definition order.
func (e *Engine) candidates(component string) []*compiled {
	indexed := e.byComp[strings.ToLower(component)]
	if len(indexed) == 0 {
		return e.generic
	}
	if len(e.generic) == 0 {
		return indexed
	}
	out := make([]*compiled, 0, len(indexed)+len(e.generic))
	i, j := 0, 0
	for i < len(indexed) && j < len(e.generic) {
		if indexed[i].index < e.generic[j].index {
			out = append(out, indexed[i])
			i++
		} else {
			out = append(out, e.generic[j])
			j++
		}
	}
	out = append(out, indexed[i:]...)
	return append(out, e.generic[j:]...)
}

func (c *compiled) match(ev *model.Event, lower string) bool {
	if c.def.MinLevel != model.LevelUnset && ev.Level < c.def.MinLevel {
		return false
	}
	if c.sources != nil && !c.sources[ev.Source] {
		return false
	}
	if c.component != nil && !c.component.MatchString(ev.Component) {
		return false
	}

	clauses := len(c.patterns) + len(c.contains)
	if clauses == 0 {
		return true
	}
	hits := 0
	for _, re := range c.patterns {
		if re.MatchString(ev.Text) {
			hits++
		} else if c.def.MatchAll {
			return false
		}
	}
	for _, s := range c.contains {
		if strings.Contains(lower, s) {
			hits++
		} else if c.def.MatchAll {
			return false
		}
	}
	return hits > 0
}

// EvaluateAll evaluates events across workers and returns every match in
// event order, rules in definition order within an event.
func (e *Engine) EvaluateAll(ctx context.Context, events []*model.Event, workers int) ([]model.RuleMatch, error) {
	if workers < 1 {
		workers = 1
	}
	if len(events) == 0 || len(e.rules) == 0 {
		return nil, nil
	}
	chunk := (len(events) + workers - 1) / workers
	parts := make([][]model.RuleMatch, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		lo := w * chunk
		if lo >= len(events) {
			break
		}
		hi := min(lo+chunk, len(events))
		g.Go(func() error {
			for i, ev := range events[lo:hi] {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				parts[w] = append(parts[w], e.Evaluate(ev)...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]model.RuleMatch, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}
