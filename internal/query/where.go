package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/store"
)

// Predicate reports whether a record passes a where clause.
type Predicate func(models.Record) (bool, error)

var (
	clausePattern = regexp.MustCompile(`(?i)^(.+?)(<=|<|>=|>|=| like | in )(.+?)$`)
	andPattern    = regexp.MustCompile(`(?i) and `)
	orPattern     = regexp.MustCompile(`(?i) or `)
	listPattern   = regexp.MustCompile(`\((.+?)\)`)
)

const whereSyntaxMessage = "Could not parse WHERE clause, check your syntax."

// ParseWhere compiles a where expression into a predicate.
//
// Clauses are joined by a single connective. If " and " appears anywhere the
// expression is split on it alone, otherwise on " or "; an expression that
// mixes both keeps the other connective inside its clause text.
func ParseWhere(expr string) (Predicate, error) {
	clauses := []string{strings.TrimSpace(expr)}
	anyOf := false
	switch {
	case andPattern.MatchString(expr):
		clauses = andPattern.Split(expr, -1)
	case orPattern.MatchString(expr):
		clauses = orPattern.Split(expr, -1)
		anyOf = true
	}

	checks := make([]Predicate, 0, len(clauses))
	for _, clause := range clauses {
		check, err := parseClause(clause)
		if err != nil {
			return nil, newError(whereSyntaxMessage)
		}
		checks = append(checks, check)
	}

	return func(r models.Record) (bool, error) {
		acc := !anyOf
		for _, check := range checks {
			ok, err := check(r)
			if err != nil {
				return false, err
			}
			if anyOf {
				acc = acc || ok
			} else {
				acc = acc && ok
			}
		}
		return acc, nil
	}, nil
}

func parseClause(clause string) (Predicate, error) {
	m := clausePattern.FindStringSubmatch(clause)
	if m == nil {
		return nil, fmt.Errorf("no operator in clause %q", clause)
	}
	field := strings.TrimSpace(m[1])
	operator := strings.ToLower(m[2])
	raw := strings.TrimSpace(m[3])

	switch operator {
	case " like ":
		var needle string
		if err := json.Unmarshal([]byte(raw), &needle); err != nil {
			return nil, err
		}
		needle = strings.ToLower(needle)
		return func(r models.Record) (bool, error) {
			s, ok := r[field].(string)
			if !ok {
				return false, errorf("Field %q is not a string", field)
			}
			return strings.Contains(strings.ToLower(s), needle), nil
		}, nil

	case " in ":
		inner := listPattern.FindStringSubmatch(raw)
		if inner == nil {
			return nil, fmt.Errorf("missing value list in clause %q", clause)
		}
		var options []interface{}
		if err := json.Unmarshal([]byte("["+inner[1]+"]"), &options); err != nil {
			return nil, err
		}
		return func(r models.Record) (bool, error) {
			got := r[field]
			for _, option := range options {
				if got == nil && option == nil {
					return true, nil
				}
				if store.StrictEqual(got, option) {
					return true, nil
				}
			}
			return false, nil
		}, nil
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}

	if operator == "=" {
		return func(r models.Record) (bool, error) {
			return looseEqual(r[field], value), nil
		}, nil
	}

	var accept func(int) bool
	switch operator {
	case "<=":
		accept = func(c int) bool { return c <= 0 }
	case "<":
		accept = func(c int) bool { return c < 0 }
	case ">=":
		accept = func(c int) bool { return c >= 0 }
	case ">":
		accept = func(c int) bool { return c > 0 }
	}
	return func(r models.Record) (bool, error) {
		c, ok := relational(r[field], value)
		return ok && accept(c), nil
	}, nil
}
