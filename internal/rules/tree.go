package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
)

// WildcardMonth is the month key that matches every month.
const WildcardMonth = "00"

// Branch is the top level of the tree.
type Branch struct {
	MonthType MonthType `json:"month_type"`
	AngaType  AngaType  `json:"anga_type"`
}

// CyclicAnchorError reports anchor rules that depend on each other.
type CyclicAnchorError struct {
	IDs []string
}

func (e *CyclicAnchorError) Error() string {
	return fmt.Sprintf("cyclic anchor dependency among rules: %s", strings.Join(e.IDs, ", "))
}

// DuplicateRuleError reports two records with the same id.
type DuplicateRuleError struct {
	ID          string
	First, Then string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("duplicate rule id %q (%s, %s)", e.ID, e.First, e.Then)
}

// Tree indexes rules by branch, month key and anga number. It is read-only
// once built and safe for concurrent use.
type Tree struct {
	branches map[Branch]map[string]map[int][]*Rule
	relative []*Rule
	byID     map[string]*Rule
}

// Build indexes records. Anchor-relative rules are kept aside in
// topological order; a cycle among them fails with *CyclicAnchorError.
func Build(records []*Rule) (*Tree, error) {
	t := &Tree{
		branches: make(map[Branch]map[string]map[int][]*Rule),
		byID:     make(map[string]*Rule, len(records)),
	}

	var relative []*Rule
	for _, r := range records {
		if prev, ok := t.byID[r.ID]; ok {
			return nil, &DuplicateRuleError{ID: r.ID, First: prev.SourcePath, Then: r.SourcePath}
		}
		t.byID[r.ID] = r

		switch {
		case r.IsDescriptionOnly():
		case r.IsRelative():
			relative = append(relative, r)
		default:
			t.insert(r)
		}
	}

	for _, months := range t.branches {
		for _, numbers := range months {
			for _, rs := range numbers {
				sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
			}
		}
	}

	ordered, err := anchorOrder(relative)
	if err != nil {
		return nil, err
	}
	t.relative = ordered
	return t, nil
}

func (t *Tree) insert(r *Rule) {
	b := r.Branch()
	months, ok := t.branches[b]
	if !ok {
		months = make(map[string]map[int][]*Rule)
		t.branches[b] = months
	}
	key := r.Timing.MonthNumber.Key()
	numbers, ok := months[key]
	if !ok {
		numbers = make(map[int][]*Rule)
		months[key] = numbers
	}
	numbers[r.Timing.AngaNumber] = append(numbers[r.Timing.AngaNumber], r)
}

// anchorOrder sorts relative rules so every anchor precedes its
// dependents. Anchors that are not themselves relative are roots.
func anchorOrder(relative []*Rule) ([]*Rule, error) {
	if len(relative) == 0 {
		return nil, nil
	}

	ids := make(map[string]int64)
	names := []string{}
	node := func(id string) simple.Node {
		n, ok := ids[id]
		if !ok {
			n = int64(len(names))
			ids[id] = n
			names = append(names, id)
		}
		return simple.Node(n)
	}

	sorted := append([]*Rule(nil), relative...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	g := simple.NewDirectedGraph()
	byID := make(map[string]*Rule, len(sorted))
	for _, r := range sorted {
		byID[r.ID] = r
		anchor := r.Timing.AnchorFestivalID
		if anchor == r.ID {
			return nil, &CyclicAnchorError{IDs: []string{r.ID}}
		}
		from, to := node(anchor), node(r.ID)
		if g.Node(from.ID()) == nil {
			g.AddNode(from)
		}
		if g.Node(to.ID()) == nil {
			g.AddNode(to)
		}
		g.SetEdge(g.NewEdge(from, to))
	}

	order, err := topo.SortStabilized(g, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	})
	if err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) && len(cycles) > 0 {
			var members []string
			for _, n := range cycles[0] {
				members = append(members, names[n.ID()])
			}
			sort.Strings(members)
			return nil, &CyclicAnchorError{IDs: members}
		}
		return nil, fmt.Errorf("order anchor rules: %w", err)
	}

	out := make([]*Rule, 0, len(sorted))
	for _, n := range order {
		if r, ok := byID[names[n.ID()]]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Lookup returns the rules filed under exactly (monthType, angaType,
// monthKey, angaNumber). It does not merge the wildcard month.
func (t *Tree) Lookup(monthType MonthType, angaType AngaType, monthKey string, angaNumber int) []*Rule {
	return t.branches[Branch{monthType, angaType}][monthKey][angaNumber]
}

// Candidates merges the rules for month with those for the wildcard month.
func (t *Tree) Candidates(monthType MonthType, angaType AngaType, month anga.LunarMonth, angaNumber int) []*Rule {
	specific := t.Lookup(monthType, angaType, month.Key(), angaNumber)
	wildcard := t.Lookup(monthType, angaType, WildcardMonth, angaNumber)
	if len(wildcard) == 0 || month.Key() == WildcardMonth {
		return specific
	}
	out := make([]*Rule, 0, len(specific)+len(wildcard))
	out = append(out, specific...)
	return append(out, wildcard...)
}

// Relative returns the anchor-relative rules, anchors first.
func (t *Tree) Relative() []*Rule {
	return t.relative
}

// Rule returns the rule with the given id.
func (t *Tree) Rule(id string) (*Rule, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Branches lists the populated branches in a stable order.
func (t *Tree) Branches() []Branch {
	out := make([]Branch, 0, len(t.branches))
	for b := range t.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MonthType != out[j].MonthType {
			return out[i].MonthType < out[j].MonthType
		}
		return out[i].AngaType < out[j].AngaType
	})
	return out
}

// Len returns the number of rules, including relative and
// description-only ones.
func (t *Tree) Len() int { return len(t.byID) }

// Rules returns every rule ordered by id.
func (t *Tree) Rules() []*Rule {
	out := make([]*Rule, 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fingerprint returns a short hash of the rule set's content. Trees built
// from the same rules, in any order, share a fingerprint.
func (t *Tree) Fingerprint() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, r := range t.Rules() {
		// Rule holds only strings, slices and maps; encoding cannot fail.
		_ = enc.Encode(r)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
