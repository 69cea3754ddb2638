package design

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"firecarbon/domain/core"
)

// Formula is an expanded model formula: the ordered list of variable
// tuples that become design terms, plus the intercept flag.
type Formula struct {
	Source    string
	Intercept bool
	// Variables in order of first appearance.
	Variables []string
	// Tuples are sorted by order, then by first appearance.
	Tuples [][]string
}

// ParseFormula expands formulas such as "~ depth*severity",
// "~ (depth + microsite + severity)^2 + baseline_total_carbon" or
// "~ a + b + a:b - 1".
func ParseFormula(src string) (Formula, error) {
	toks, err := tokenize(src)
	if err != nil {
		return Formula{}, err
	}
	p := &parser{toks: toks, position: map[string]int{}}
	if p.peek() == "~" {
		p.next()
	}
	set, err := p.parseSum()
	if err != nil {
		return Formula{}, err
	}
	if p.peek() != "" {
		return Formula{}, core.NewConfigurationError("formula %q: unexpected %q", src, p.peek())
	}
	if len(set) == 0 {
		return Formula{}, core.NewConfigurationError("formula %q has no terms", src)
	}

	f := Formula{Source: src, Intercept: !p.dropIntercept}
	f.Variables = make([]string, len(p.position))
	for name, i := range p.position {
		f.Variables[i] = name
	}

	tuples := make([][]string, len(set))
	for i, s := range set {
		tuples[i] = append([]string(nil), s...)
	}
	sort.SliceStable(tuples, func(i, j int) bool {
		return len(tuples[i]) < len(tuples[j])
	})
	f.Tuples = tuples
	return f, nil
}

// String renders the expanded formula.
func (f Formula) String() string {
	parts := make([]string, 0, len(f.Tuples)+1)
	if !f.Intercept {
		parts = append(parts, "-1")
	}
	for _, t := range f.Tuples {
		parts = append(parts, strings.Join(t, ":"))
	}
	return "~ " + strings.Join(parts, " + ")
}

// termSet is an ordered, de-duplicated list of variable tuples.
type termSet [][]string

type parser struct {
	toks          []string
	pos           int
	position      map[string]int
	dropIntercept bool
}

func (p *parser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

// parseSum handles '+' and '-1'.
func (p *parser) parseSum() (termSet, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case "+":
			p.next()
			right, err := p.parseProduct()
			if err != nil {
				return nil, err
			}
			left = p.union(left, right)
		case "-":
			p.next()
			if tok := p.next(); tok != "1" {
				return nil, core.NewConfigurationError("only '-1' may be subtracted, got '-%s'", tok)
			}
			p.dropIntercept = true
		default:
			return left, nil
		}
	}
}

// parseProduct handles '*' (crossing) and ':' (interaction only).
func (p *parser) parseProduct() (termSet, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case "*":
			p.next()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = p.union(p.union(left, right), p.interact(left, right))
		case ":":
			p.next()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = p.interact(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) parsePower() (termSet, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.peek() != "^" {
		return base, nil
	}
	p.next()
	tok := p.next()
	k, err := strconv.Atoi(tok)
	if err != nil || k < 1 {
		return nil, core.NewConfigurationError("invalid interaction order %q", tok)
	}
	out := base
	for i := 1; i < k; i++ {
		out = p.union(out, p.interact(out, base))
	}
	return out, nil
}

func (p *parser) parseAtom() (termSet, error) {
	tok := p.next()
	switch {
	case tok == "(":
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.next() != ")" {
			return nil, core.NewConfigurationError("unbalanced parentheses")
		}
		return inner, nil
	case tok == "1":
		// explicit intercept
		return termSet{}, nil
	case isName(tok):
		if _, ok := p.position[tok]; !ok {
			p.position[tok] = len(p.position)
		}
		return termSet{{tok}}, nil
	case tok == "":
		return nil, core.NewConfigurationError("unexpected end of formula")
	}
	return nil, core.NewConfigurationError("unexpected token %q", tok)
}

func (p *parser) union(a, b termSet) termSet {
	out := append(termSet(nil), a...)
	seen := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		seen[strings.Join(t, ":")] = true
	}
	for _, t := range b {
		key := strings.Join(t, ":")
		if !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}
	return out
}

func (p *parser) interact(a, b termSet) termSet {
	var out termSet
	for _, s := range a {
		for _, t := range b {
			out = p.union(out, termSet{p.merge(s, t)})
		}
	}
	return out
}

// merge joins two tuples, keeping variables in order of first appearance.
func (p *parser) merge(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return p.position[out[i]] < p.position[out[j]]
	})
	return out
}

func tokenize(src string) ([]string, error) {
	var toks []string
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case strings.ContainsRune("~+*:()^-", r):
			toks = append(toks, string(r))
			i++
		case isNameRune(r):
			j := i
			for j < len(rs) && isNameRune(rs[j]) {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		default:
			return nil, core.NewConfigurationError("formula %q: invalid character %q", src, r)
		}
	}
	return toks, nil
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func isName(tok string) bool {
	if tok == "" {
		return false
	}
	r := []rune(tok)[0]
	return unicode.IsLetter(r) || r == '_' || r == '.'
}
