package rules

import (
	"errors"

	"github.com/isdelr/practice-server/internal/models"
)

var (
	// ErrUnauthorized is returned when a rule needs a user and there is none.
	ErrUnauthorized = errors.New("authorization required")
	// ErrForbidden is returned when the resolved rule denies the request.
	ErrForbidden = errors.New("access denied")
)

// Lookup resolves get(collection, id) inside expressions.
type Lookup func(collection, id string) (models.Record, error)

// Request describes one access decision.
type Request struct {
	Action     Action
	Collection string
	User       models.Record
	Admin      bool
	// Data is the stored record the request reads or modifies; nil on create
	// and on list reads.
	Data models.Record
	// NewData is the incoming payload on create and update.
	NewData models.Record
	// RecordID selects per-record rules when Data no longer carries _id.
	RecordID string
	// Output receives read redactions instead of Data, e.g. a projection of
	// Data. Rules are still evaluated against Data.
	Output models.Record
}

func (r Request) recordID() string {
	if r.RecordID != "" {
		return r.RecordID
	}
	return r.Data.ID()
}

// Checker evaluates a RuleSet.
type Checker struct {
	rules  *RuleSet
	lookup Lookup
}

// NewChecker creates a Checker for rs; a nil rs means the default rules.
func NewChecker(rs *RuleSet, lookup Lookup) *Checker {
	if rs == nil {
		rs = Default()
	}
	return &Checker{rules: rs, lookup: lookup}
}

// Check authorizes req and then applies field rules: a field whose rule
// evaluates false is deleted from NewData on create and update, and from Data
// on read. Denials are ignored when req.Admin is set; a missing user is not.
func (c *Checker) Check(req Request) error {
	if err := c.Authorize(req); err != nil {
		return err
	}
	c.Redact(req)
	return nil
}

// Authorize runs only the top-level decision.
func (c *Checker) Authorize(req Request) error {
	rule := c.resolve(req.Action, req.Collection, req.recordID())
	allowed, err := c.decide(rule, req)
	if err != nil {
		return err
	}
	if !allowed && !req.Admin {
		return ErrForbidden
	}
	return nil
}

// Redact applies the field rules resolved for req.Data. Read redactions go
// to req.Output when it is set.
func (c *Checker) Redact(req Request) {
	for _, fr := range c.fieldRules(req.Action, req.Collection, req.recordID()) {
		if c.fieldAllowed(fr.rule, req) {
			continue
		}
		switch req.Action {
		case ActionCreate, ActionUpdate:
			if req.NewData != nil {
				delete(req.NewData, fr.field)
			}
		case ActionRead:
			target := req.Output
			if target == nil {
				target = req.Data
			}
			if target != nil {
				delete(target, fr.field)
			}
		}
	}
}

func (c *Checker) resolve(action Action, collection, recordID string) Rule {
	current := Allow(true)
	current = ruleOrDefault(current, c.rules.Global[action])

	cr, ok := c.rules.Collections[collection]
	if !ok {
		return current
	}
	current = ruleOrDefault(current, cr.Actions[action])
	if recordID != "" {
		if rec, ok := cr.Records[recordID]; ok {
			current = ruleOrDefault(current, rec.Actions[action])
		}
	}
	return current
}

type fieldRule struct {
	field string
	rule  Rule
}

func (c *Checker) fieldRules(action Action, collection, recordID string) []fieldRule {
	cr, ok := c.rules.Collections[collection]
	if !ok {
		return nil
	}
	out := fieldRulesFor(cr.Fields, action)
	if recordID != "" {
		if rec, ok := cr.Records[recordID]; ok {
			if specific := fieldRulesFor(rec.Fields, action); len(specific) > 0 {
				out = specific
			}
		}
	}
	return out
}

func fieldRulesFor(fields []FieldRule, action Action) []fieldRule {
	var out []fieldRule
	for _, f := range fields {
		if rule, ok := f.Actions[action]; ok {
			out = append(out, fieldRule{field: f.Field, rule: rule})
		}
	}
	return out
}

func ruleOrDefault(current, rule Rule) Rule {
	if !rule.Defined() {
		return current
	}
	return rule
}

func (c *Checker) decide(rule Rule, req Request) (bool, error) {
	switch rule.kind {
	case kindRoles:
		return c.checkRoles(rule.roles, req)
	case kindBool:
		return rule.value, nil
	case kindExpr:
		return Eval(rule.expr, c.env(req)), nil
	default:
		return true, nil
	}
}

func (c *Checker) checkRoles(roles []Role, req Request) (bool, error) {
	switch {
	case hasRole(roles, RoleGuest):
		return true, nil
	case req.User == nil && !req.Admin:
		return false, ErrUnauthorized
	case hasRole(roles, RoleUser):
		return true, nil
	case req.User != nil && hasRole(roles, RoleOwner):
		return isOwner(req.User, req.Data), nil
	default:
		return false, nil
	}
}

// fieldAllowed never fails: a role list that needs a user simply denies.
func (c *Checker) fieldAllowed(rule Rule, req Request) bool {
	switch rule.kind {
	case kindRoles:
		switch {
		case hasRole(rule.roles, RoleGuest):
			return true
		case req.User == nil:
			return false
		case hasRole(rule.roles, RoleUser):
			return true
		case hasRole(rule.roles, RoleOwner):
			return isOwner(req.User, req.Data)
		default:
			return false
		}
	case kindBool:
		return rule.value
	case kindExpr:
		return Eval(rule.expr, c.env(req))
	default:
		return true
	}
}

func (c *Checker) env(req Request) *Env {
	env := &Env{User: req.User, Data: req.Data, NewData: req.NewData}
	if c.lookup != nil {
		env.Get = c.lookup
	}
	return env
}

func hasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func isOwner(user, record models.Record) bool {
	id := user.ID()
	return id != "" && id == record.OwnerID()
}
