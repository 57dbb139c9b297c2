package batch

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/roach88/flowmig/internal/plan"
)

// ErrNotAuthorized is returned when a plan's definition pair is not allowed.
var ErrNotAuthorized = errors.New("migration not authorized")

// Authorizer decides whether instances may be migrated with a plan.
type Authorizer interface {
	Authorize(p *plan.Plan) error
}

// AllowAll authorizes every plan.
type AllowAll struct{}

func (AllowAll) Authorize(*plan.Plan) error { return nil }

// AllowList authorizes plans whose "source->target" definition ids match
// one of its patterns. Each side is a path.Match glob, so "order:*->order:*"
// allows any version pair of order. The pattern "*" alone allows
// everything.
type AllowList struct {
	rules []rule
	all   bool
}

type rule struct {
	source, target string
}

// NewAllowList parses patterns of the form "source->target" or "*".
func NewAllowList(patterns []string) (*AllowList, error) {
	al := &AllowList{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "*" {
			al.all = true
			continue
		}
		src, tgt, ok := strings.Cut(p, "->")
		src, tgt = strings.TrimSpace(src), strings.TrimSpace(tgt)
		if !ok || src == "" || tgt == "" {
			return nil, fmt.Errorf("authorization rule %q: expected source->target", p)
		}
		for _, side := range []string{src, tgt} {
			if _, err := path.Match(side, ""); err != nil {
				return nil, fmt.Errorf("authorization rule %q: %w", p, err)
			}
		}
		al.rules = append(al.rules, rule{source: src, target: tgt})
	}
	return al, nil
}

// Authorize implements Authorizer.
func (al *AllowList) Authorize(p *plan.Plan) error {
	if al.all {
		return nil
	}
	for _, r := range al.rules {
		srcOK, _ := path.Match(r.source, p.SourceDefinitionID)
		tgtOK, _ := path.Match(r.target, p.TargetDefinitionID)
		if srcOK && tgtOK {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrNotAuthorized, p.SourceDefinitionID, p.TargetDefinitionID)
}
