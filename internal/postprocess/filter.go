// Package postprocess drops announcements that match operator deny rules.
package postprocess

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

type Engine struct {
	creators map[string]struct{}
	keywords []string
	regs     []compiledRegex
}

type compiledRegex struct {
	field string
	re    *regexp.Regexp
}

// New compiles cfg. Blank rules are ignored; a bad expression is an error.
func New(cfg config.Filter) (*Engine, error) {
	eng := &Engine{creators: map[string]struct{}{}}
	for _, c := range cfg.DenyCreators {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			eng.creators[c] = struct{}{}
		}
	}
	for _, w := range cfg.DenyKeywords {
		if s := strings.TrimSpace(w); s != "" {
			eng.keywords = append(eng.keywords, strings.ToLower(s))
		}
	}
	for _, r := range cfg.DenyRegex {
		if strings.TrimSpace(r.Field) == "" || strings.TrimSpace(r.Expr) == "" {
			continue
		}
		switch strings.ToLower(r.Field) {
		case "name", "description", "creator":
		default:
			return nil, fmt.Errorf("deny_regex: unknown field %q", r.Field)
		}
		re, err := regexp.Compile(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("deny_regex %q: %w", r.Expr, err)
		}
		eng.regs = append(eng.regs, compiledRegex{field: strings.ToLower(r.Field), re: re})
	}
	return eng, nil
}

// Empty reports whether the engine has no rules.
func (e *Engine) Empty() bool {
	return e == nil || len(e.creators) == 0 && len(e.keywords) == 0 && len(e.regs) == 0
}

// Deny returns a non-empty reason when the event should not be announced.
// creator is the resolved display name; the raw address is checked too.
func (e *Engine) Deny(ev model.RawEvent, md model.Metadata, creator string) string {
	if e.Empty() {
		return ""
	}
	for _, c := range []string{ev.Creator, creator} {
		if _, ok := e.creators[strings.ToLower(strings.TrimSpace(c))]; ok && c != "" {
			return "creator " + c
		}
	}
	name := strings.ToLower(md.Name)
	for _, w := range e.keywords {
		if strings.Contains(name, w) {
			return "keyword " + w
		}
	}
	field := func(f string) string {
		switch f {
		case "name":
			return md.Name
		case "description":
			return md.Description
		default:
			return creator
		}
	}
	for _, r := range e.regs {
		if r.re.MatchString(field(r.field)) {
			return fmt.Sprintf("%s matches %s", r.field, r.re)
		}
	}
	return ""
}
