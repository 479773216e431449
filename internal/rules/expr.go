package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/store"
)

// Expr is a compiled rule expression.
//
// The language is closed: literals, paths rooted at user, data and newData,
// the operators ! && || == != (=== and !== are accepted as aliases), the
// helpers isOwner(user, record) and get(collection, id), and the assignment
// newData.<field> = <expr>. Nothing else is evaluated.
type Expr interface {
	eval(env *Env) interface{}
}

// Env holds the bindings an expression is evaluated against.
type Env struct {
	User    models.Record
	Data    models.Record
	NewData models.Record
	Get     func(collection, id string) (models.Record, error)
}

// Eval evaluates e and reports the truthiness of the result.
func Eval(e Expr, env *Env) bool {
	return truthy(e.eval(env))
}

type literal struct{ value interface{} }

type path struct {
	root   string
	fields []string
}

type not struct{ x Expr }

type logical struct {
	and  bool
	l, r Expr
}

type equality struct {
	negate bool
	l, r   Expr
}

type assign struct {
	field string
	value Expr
}

type isOwnerCall struct{ user, record Expr }

type getCall struct{ collection, id Expr }

func (e literal) eval(*Env) interface{} { return e.value }

func (e path) eval(env *Env) interface{} {
	var cur interface{}
	switch e.root {
	case "user":
		cur = recordValue(env.User)
	case "data":
		cur = recordValue(env.Data)
	case "newData":
		cur = recordValue(env.NewData)
	}
	for _, f := range e.fields {
		obj, ok := models.AsRecord(cur)
		if !ok {
			return nil
		}
		cur = obj[f]
	}
	return cur
}

func (e not) eval(env *Env) interface{} { return !truthy(e.x.eval(env)) }

func (e logical) eval(env *Env) interface{} {
	l := e.l.eval(env)
	if e.and != truthy(l) {
		return l
	}
	return e.r.eval(env)
}

func (e equality) eval(env *Env) interface{} {
	l, r := e.l.eval(env), e.r.eval(env)
	eq := store.StrictEqual(l, r) || (l == nil && r == nil)
	return eq != e.negate
}

func (e assign) eval(env *Env) interface{} {
	v := models.DeepCopy(e.value.eval(env))
	if env.NewData == nil {
		return false
	}
	env.NewData[e.field] = v
	return v
}

func (e isOwnerCall) eval(env *Env) interface{} {
	user, ok := models.AsRecord(e.user.eval(env))
	if !ok {
		return false
	}
	record, ok := models.AsRecord(e.record.eval(env))
	if !ok {
		return false
	}
	id := user.ID()
	return id != "" && id == record.OwnerID()
}

func (e getCall) eval(env *Env) interface{} {
	collection, ok := e.collection.eval(env).(string)
	if !ok || env.Get == nil {
		return nil
	}
	id, ok := e.id.eval(env).(string)
	if !ok {
		return nil
	}
	record, err := env.Get(collection, id)
	if err != nil {
		return nil
	}
	return record
}

func recordValue(r models.Record) interface{} {
	if r == nil {
		return nil
	}
	return r
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

// Compile parses src into an Expr.
func Compile(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, fmt.Errorf("unexpected %q in expression %q", p.peek().text, src)
	}
	return e, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
)

type token struct {
	kind tokKind
	text string
}

var operators = []string{"===", "!==", "==", "!=", "&&", "||", "=", "!", "(", ")", ",", "."}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\'' || c == '"':
			s, n, err := lexString(src[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s})
			i += n
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j]})
			i = j
		case c == '_' || c == '$' || unicode.IsLetter(c):
			j := i + 1
			for j < len(src) && (src[j] == '_' || src[j] == '$' || unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j]))) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j]})
			i = j
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q in expression", c)
			}
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

func lexString(src string) (string, int, error) {
	quote := src[0]
	var sb strings.Builder
	for i := 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			if i+1 >= len(src) {
				return "", 0, fmt.Errorf("unterminated string")
			}
			i++
			switch src[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(src[i])
			}
		case quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(src[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) at(kind tokKind) bool { return p.peek().kind == kind }

func (p *parser) atOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(op string) error {
	if !p.atOp(op) {
		return fmt.Errorf("expected %q, found %q", op, p.peek().text)
	}
	p.next()
	return nil
}

func (p *parser) parseAssign() (Expr, error) {
	lhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atOp("=") {
		return lhs, nil
	}
	p.next()
	target, ok := lhs.(path)
	if !ok || target.root != "newData" || len(target.fields) != 1 {
		return nil, fmt.Errorf("only newData.<field> can be assigned")
	}
	value, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return assign{field: target.fields[0], value: value}, nil
}

func (p *parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atOp("||") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = logical{and: false, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (Expr, error) {
	l, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.atOp("&&") {
		p.next()
		r, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		l = logical{and: true, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseEquality() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atOp("==") || p.atOp("===") || p.atOp("!=") || p.atOp("!==") {
		op := p.next().text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = equality{negate: strings.HasPrefix(op, "!"), l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.atOp("!") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return literal{value: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return literal{value: f}, nil
	case tokOp:
		if t.text != "(" {
			return nil, fmt.Errorf("unexpected %q", t.text)
		}
		e, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return e, nil
	case tokIdent:
		return p.parseIdent(t.text)
	default:
		return nil, fmt.Errorf("unexpected end of expression")
	}
}

func (p *parser) parseIdent(name string) (Expr, error) {
	switch name {
	case "true":
		return literal{value: true}, nil
	case "false":
		return literal{value: false}, nil
	case "null", "undefined":
		return literal{value: nil}, nil
	case "isOwner", "get":
		args, err := p.parseArgs(2)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if name == "isOwner" {
			return isOwnerCall{user: args[0], record: args[1]}, nil
		}
		return getCall{collection: args[0], id: args[1]}, nil
	case "user", "data", "newData":
		e := path{root: name}
		for p.atOp(".") {
			p.next()
			field := p.next()
			if field.kind != tokIdent {
				return nil, fmt.Errorf("expected a field name after %q", name)
			}
			e.fields = append(e.fields, field.text)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown identifier %q", name)
	}
}

func (p *parser) parseArgs(n int) ([]Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	args := make([]Expr, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return args, nil
}
