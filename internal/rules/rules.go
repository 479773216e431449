// Package rules evaluates declarative access rules for collections.
//
// A rule set is written in YAML (or JSON) using the same shape the practice
// server has always used:
//
//	"*":                      # global defaults, replaces the built-in ones
//	  .create: [User]
//	users:
//	  .create: false
//	  .read: [Owner]
//	members:
//	  .update: "isOwner(user, get('teams', data.teamId))"
//	  "*":                    # field rules
//	    status:
//	      .create: "newData.status = 'pending'"
//	  <record id>:            # rules for a single record
//	    .read: [Guest]
//
// A rule is a list of roles (Guest, User, Owner), a boolean, or an expression.
package rules

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action is the operation a request performs on a collection.
type Action string

const (
	ActionRead   Action = ".read"
	ActionCreate Action = ".create"
	ActionUpdate Action = ".update"
	ActionDelete Action = ".delete"
)

// ActionForMethod maps an HTTP method to its rule action.
func ActionForMethod(method string) (Action, bool) {
	switch method {
	case http.MethodGet:
		return ActionRead, true
	case http.MethodPost:
		return ActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate, true
	case http.MethodDelete:
		return ActionDelete, true
	default:
		return "", false
	}
}

// Role is a role token usable in a rule list.
type Role string

const (
	RoleGuest Role = "Guest"
	RoleUser  Role = "User"
	RoleOwner Role = "Owner"
)

type ruleKind int

const (
	kindUnset ruleKind = iota
	kindRoles
	kindBool
	kindExpr
)

// Rule is a single permission check.
type Rule struct {
	kind  ruleKind
	roles []Role
	value bool
	expr  Expr
	src   string
}

// Roles builds a role-list rule.
func Roles(roles ...Role) Rule {
	if len(roles) == 0 {
		return Rule{}
	}
	return Rule{kind: kindRoles, roles: roles}
}

// Allow builds a literal rule.
func Allow(v bool) Rule {
	return Rule{kind: kindBool, value: v}
}

// Expression compiles src into an expression rule.
func Expression(src string) (Rule, error) {
	if strings.TrimSpace(src) == "" {
		return Rule{}, nil
	}
	e, err := Compile(src)
	if err != nil {
		return Rule{}, err
	}
	return Rule{kind: kindExpr, expr: e, src: src}, nil
}

// Defined reports whether the rule overrides a less specific one. Empty role
// lists and empty expressions fall through.
func (r Rule) Defined() bool {
	return r.kind != kindUnset
}

func (r Rule) String() string {
	switch r.kind {
	case kindRoles:
		return fmt.Sprint(r.roles)
	case kindBool:
		return fmt.Sprint(r.value)
	case kindExpr:
		return r.src
	default:
		return "<unset>"
	}
}

// UnmarshalYAML decodes a role list, a boolean or an expression string.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		roles := make([]Role, 0, len(names))
		for _, name := range names {
			role := Role(name)
			if role != RoleGuest && role != RoleUser && role != RoleOwner {
				return fmt.Errorf("line %d: unknown role %q", node.Line, name)
			}
			roles = append(roles, role)
		}
		*r = Roles(roles...)
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*r = Rule{}
			return nil
		}
		if node.Tag == "!!bool" {
			var v bool
			if err := node.Decode(&v); err != nil {
				return err
			}
			*r = Allow(v)
			return nil
		}
		rule, err := Expression(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = rule
		return nil
	default:
		return fmt.Errorf("line %d: rule must be a role list, boolean or expression", node.Line)
	}
}

// FieldRule holds the per-action rules of one field.
type FieldRule struct {
	Field   string
	Actions map[Action]Rule
}

// Permissions is a set of action rules plus field rules.
type Permissions struct {
	Actions map[Action]Rule
	Fields  []FieldRule
}

// CollectionRules are the rules of one collection.
type CollectionRules struct {
	Permissions
	Records map[string]Permissions
}

// RuleSet is the complete, compiled rule configuration.
type RuleSet struct {
	Global      map[Action]Rule
	Collections map[string]CollectionRules
}

// DefaultGlobal are the global rules used when a rule set does not define "*".
func DefaultGlobal() map[Action]Rule {
	return map[Action]Rule{
		ActionCreate: Roles(RoleUser),
		ActionUpdate: Roles(RoleOwner),
		ActionDelete: Roles(RoleOwner),
	}
}

// Default returns a rule set with only the default global rules.
func Default() *RuleSet {
	return &RuleSet{
		Global:      DefaultGlobal(),
		Collections: make(map[string]CollectionRules),
	}
}

// Load reads a YAML or JSON rule set.
func Load(r io.Reader) (*RuleSet, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if err == io.EOF {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("rules must be a mapping of collection names")
	}

	rs := Default()
	for i := 0; i+1 < len(doc.Content); i += 2 {
		name, value := doc.Content[i].Value, doc.Content[i+1]
		if name == "*" {
			global, err := decodeActions(value)
			if err != nil {
				return nil, fmt.Errorf("global rules: %w", err)
			}
			rs.Global = global
			continue
		}
		cr, err := decodeCollection(value)
		if err != nil {
			return nil, fmt.Errorf("rules for %q: %w", name, err)
		}
		rs.Collections[name] = cr
	}
	return rs, nil
}

// LoadString is Load for an in-memory document.
func LoadString(doc string) (*RuleSet, error) {
	return Load(strings.NewReader(doc))
}

func decodeActions(node *yaml.Node) (map[Action]Rule, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of actions", node.Line)
	}
	actions := make(map[Action]Rule)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if !strings.HasPrefix(key, ".") {
			return nil, fmt.Errorf("line %d: %q is not an action", node.Content[i].Line, key)
		}
		var rule Rule
		if err := node.Content[i+1].Decode(&rule); err != nil {
			return nil, err
		}
		actions[Action(key)] = rule
	}
	return actions, nil
}

// decodePermissions reads action keys (".read") and, when fieldKeys is true,
// treats every other key as a field name.
func decodePermissions(node *yaml.Node, fieldKeys bool) (Permissions, []*yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return Permissions{}, nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	p := Permissions{Actions: make(map[Action]Rule)}
	var rest []*yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, value := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		switch {
		case strings.HasPrefix(key, "."):
			var rule Rule
			if err := value.Decode(&rule); err != nil {
				return Permissions{}, nil, err
			}
			p.Actions[Action(key)] = rule
		case fieldKeys:
			actions, err := decodeActions(value)
			if err != nil {
				return Permissions{}, nil, fmt.Errorf("field %q: %w", key, err)
			}
			p.Fields = append(p.Fields, FieldRule{Field: key, Actions: actions})
		default:
			rest = append(rest, keyNode, value)
		}
	}
	return p, rest, nil
}

func decodeCollection(node *yaml.Node) (CollectionRules, error) {
	p, rest, err := decodePermissions(node, false)
	if err != nil {
		return CollectionRules{}, err
	}
	cr := CollectionRules{Permissions: p, Records: make(map[string]Permissions)}
	for i := 0; i+1 < len(rest); i += 2 {
		key, value := rest[i].Value, rest[i+1]
		if key == "*" {
			fields, _, err := decodePermissions(value, true)
			if err != nil {
				return CollectionRules{}, fmt.Errorf("field rules: %w", err)
			}
			cr.Fields = fields.Fields
			continue
		}
		record, _, err := decodePermissions(value, true)
		if err != nil {
			return CollectionRules{}, fmt.Errorf("record %q: %w", key, err)
		}
		cr.Records[key] = record
	}
	return cr, nil
}
