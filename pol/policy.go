// Package pol provides a simple role based resolver for delegated permission settings.
//
// Exposure tables decide boolean settings themselves. Identifier and set settings are handed
// to a delegate at call time, and this package implements that delegate with a role graph:
// an identifier setting names a required role, a set setting permits any of its roles.
package pol

import (
	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison/expo"
)

// Rules is a role graph with explicit allow and deny actions and role membership.
type Rules struct{ roles map[string]*role }

func NewRules() *Rules { return &Rules{roles: make(map[string]*role)} }

// AddRole adds a role with a default verdict for unlisted actions.
func (p *Rules) AddRole(name string, def bool) *Rules {
	p.role(name).def = def
	return p
}

// AddMember makes member a part of group, inheriting its permissions and roles.
func (p *Rules) AddMember(member, group string) *Rules {
	s := p.role(member)
	s.roles = append(s.roles, p.role(group))
	return p
}

// Allow permits the role to execute the action.
func (p *Rules) Allow(role, action string) *Rules {
	s := p.role(role)
	s.allow = append(s.allow, action)
	return p
}

// Deny denies the role to execute the action even when allowed through another role.
func (p *Rules) Deny(role, action string) *Rules {
	s := p.role(role)
	s.deny = append(s.deny, action)
	return p
}

// Police checks whether the subject may execute the action or returns an error.
func (p *Rules) Police(subject, action string) error {
	s := p.roles[subject]
	if s == nil {
		return cor.Errorf("subject %q is unknown", subject)
	}
	if !s.def && !s.allowed(action) {
		return cor.Errorf("subject %q is not allowed to %q", subject, action)
	}
	if s.denied(action) {
		return cor.Errorf("subject %q is denied to %q", subject, action)
	}
	return nil
}

// Is reports whether the subject has the named role, directly or through membership.
func (p *Rules) Is(subject, name string) bool {
	if subject == name {
		return true
	}
	s := p.roles[subject]
	return s != nil && s.is(name)
}

func (p *Rules) role(name string) (s *role) {
	if s = p.roles[name]; s == nil {
		s = &role{name: name}
		p.roles[name] = s
	}
	return s
}

// Resolver binds a caller role to the rules and resolves delegated exposure settings.
// It implements the layer delegate interface.
type Resolver struct {
	Rules  *Rules
	Caller string
}

// NewResolver returns a resolver for the given caller role.
func NewResolver(rules *Rules, caller string) *Resolver {
	return &Resolver{Rules: rules, Caller: caller}
}

// Resolve answers a delegated permission setting for the bound caller. A nil setting means the
// owner decides and resolves through the caller role's explicit action rules. An identifier
// setting requires that role, a set setting any of its roles.
func (r *Resolver) Resolve(s expo.Setting, op string) (bool, error) {
	switch v := s.(type) {
	case nil:
		if r.Rules == nil {
			return false, nil
		}
		return r.Rules.Police(r.Caller, op) == nil, nil
	case string:
		return r.is(v), nil
	case []string:
		for _, id := range v {
			if r.is(id) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, cor.Errorf("cannot resolve setting %T", s)
}

func (r *Resolver) is(name string) bool {
	if r.Rules == nil {
		return r.Caller == name
	}
	return r.Rules.Is(r.Caller, name)
}

type role struct {
	name  string
	def   bool
	allow []string
	deny  []string
	roles []*role
}

func (s *role) is(name string) bool {
	for _, r := range s.roles {
		if r.name == name || r.is(name) {
			return true
		}
	}
	return false
}

func (s *role) allowed(act string) bool {
	for _, a := range s.allow {
		if act == a {
			return true
		}
	}
	for _, r := range s.roles {
		if r.allowed(act) {
			return true
		}
	}
	return false
}

func (s *role) denied(act string) bool {
	for _, a := range s.deny {
		if act == a {
			return true
		}
	}
	for _, r := range s.roles {
		if r.denied(act) {
			return true
		}
	}
	return false
}
