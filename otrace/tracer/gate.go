// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import "github.com/DimitryQm/otrace-go/internal/gls"

// admit is the admission gate, evaluated before any ring slot is reserved.
// The composition is fixed: enabled flag, sampling, category allowlist,
// category denylist, user predicate. It takes no locks and does not
// allocate.
func (r *registry) admit(g *gls.G, ph Phase, name, cat string) bool {
	if !r.enabled.Load() {
		return false
	}
	c := r.cfg.Load()
	if p := c.sampleRate; p < 1 {
		if p <= 0 || g.Uniform() > p {
			return false
		}
	}
	if len(c.allow) > 0 && !containsToken(c.allow, cat) {
		return false
	}
	if len(c.deny) > 0 && containsToken(c.deny, cat) {
		return false
	}
	if c.filter != nil && !c.filter(name, cat, ph) {
		return false
	}
	return true
}

// containsToken reports whether cat equals one of the parsed CSV tokens.
// Tokens were trimmed at parse time; a missing category compares as the
// empty string.
func containsToken(tokens []string, cat string) bool {
	for _, t := range tokens {
		if t == cat {
			return true
		}
	}
	return false
}
