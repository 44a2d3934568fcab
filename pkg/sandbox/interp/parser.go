package interp

import (
	"fmt"
	"strconv"
)

type parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses src into a statement list (a module body).
func Parse(src string) ([]Stmt, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseBlockTopLevel()
}

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) at(k TokenKind, text string) bool {
	t := p.cur()
	return t.Kind == k && (text == "" || t.Text == text)
}
func (p *parser) advance() Token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) expect(k TokenKind, text string) (Token, error) {
	if !p.at(k, text) {
		return Token{}, fmt.Errorf("interp: expected %v %q, got %v at line %d", k, text, p.cur(), p.cur().Line)
	}
	return p.advance(), nil
}

func (p *parser) skipNewlines() {
	for p.at(TokNewline, "") {
		p.advance()
	}
}

func (p *parser) parseBlockTopLevel() ([]Stmt, error) {
	var stmts []Stmt
	p.skipNewlines()
	for !p.at(TokEOF, "") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if s != nil {
			stmts = append(stmts, s)
		}
		p.skipNewlines()
	}
	return stmts, nil
}

func (p *parser) parseIndentedBlock() ([]Stmt, error) {
	if _, err := p.expect(TokOp, ":"); err != nil {
		return nil, err
	}
	p.skipNewlines()
	if !p.at(TokIndent, "") {
		return nil, fmt.Errorf("interp: expected indented block at line %d", p.cur().Line)
	}
	p.advance()
	var stmts []Stmt
	p.skipNewlines()
	for !p.at(TokDedent, "") && !p.at(TokEOF, "") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if s != nil {
			stmts = append(stmts, s)
		}
		p.skipNewlines()
	}
	if p.at(TokDedent, "") {
		p.advance()
	}
	return stmts, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	switch {
	case p.at(TokKeyword, "if"):
		return p.parseIf()
	case p.at(TokKeyword, "for"):
		return p.parseFor()
	case p.at(TokKeyword, "while"):
		return p.parseWhile()
	case p.at(TokKeyword, "pass"):
		p.advance()
		return &PassStmt{}, nil
	case p.at(TokKeyword, "break"):
		p.advance()
		return &BreakStmt{}, nil
	case p.at(TokKeyword, "continue"):
		p.advance()
		return &ContinueStmt{}, nil
	case p.at(TokKeyword, "import"):
		return p.parseImport()
	case p.at(TokKeyword, "from"):
		return p.parseFromImport()
	case p.at(TokKeyword, "def"):
		return p.parseFuncDef()
	case p.at(TokKeyword, "return"):
		return p.parseReturn()
	default:
		return p.parseSimpleStmt()
	}
}

func (p *parser) parseFuncDef() (Stmt, error) {
	p.advance()
	name, err := p.expect(TokIdent, "")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokOp, "("); err != nil {
		return nil, err
	}
	var params []string
	for !p.at(TokOp, ")") {
		pn, err := p.expect(TokIdent, "")
		if err != nil {
			return nil, err
		}
		params = append(params, pn.Text)
		if p.at(TokOp, ",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokOp, ")"); err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock()
	if err != nil {
		return nil, err
	}
	return &FuncDefStmt{Name: name.Text, Params: params, Body: body}, nil
}

func (p *parser) parseReturn() (Stmt, error) {
	p.advance()
	if p.at(TokNewline, "") || p.at(TokEOF, "") || p.at(TokDedent, "") {
		return &ReturnStmt{}, nil
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ReturnStmt{X: x}, nil
}

func (p *parser) parseImport() (Stmt, error) {
	p.advance()
	name, err := p.expect(TokIdent, "")
	if err != nil {
		return nil, err
	}
	if p.at(TokKeyword, "as") {
		p.advance()
		if _, err := p.expect(TokIdent, ""); err != nil {
			return nil, err
		}
	}
	return &ImportStmt{Module: name.Text}, nil
}

func (p *parser) parseFromImport() (Stmt, error) {
	p.advance()
	mod, err := p.expect(TokIdent, "")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokKeyword, "import"); err != nil {
		return nil, err
	}
	var names []string
	for {
		n, err := p.expect(TokIdent, "")
		if err != nil {
			return nil, err
		}
		names = append(names, n.Text)
		if p.at(TokOp, ",") {
			p.advance()
			continue
		}
		break
	}
	return &ImportStmt{Module: mod.Text, From: mod.Text, Names: names}, nil
}

func (p *parser) parseIf() (Stmt, error) {
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Cond: cond, Body: body}
	for p.at(TokKeyword, "elif") {
		p.advance()
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		b, err := p.parseIndentedBlock()
		if err != nil {
			return nil, err
		}
		stmt.Elifs = append(stmt.Elifs, struct {
			Cond Expr
			Body []Stmt
		}{c, b})
	}
	if p.at(TokKeyword, "else") {
		p.advance()
		b, err := p.parseIndentedBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = b
	}
	return stmt, nil
}

func (p *parser) parseFor() (Stmt, error) {
	p.advance()
	v, err := p.expect(TokIdent, "")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokKeyword, "in"); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{Var: v.Text, Iter: iter, Body: body}, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Cond: cond, Body: body}, nil
}

var augOps = map[string]bool{"=": true, "+=": true, "-=": true, "*=": true, "/=": true}

func (p *parser) parseSimpleStmt() (Stmt, error) {
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == TokOp && augOps[p.cur().Text] {
		op := p.advance().Text
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Target: x, Op: op, Value: val}, nil
	}
	return &ExprStmt{X: x}, nil
}

// Expression parsing: precedence-climbing over or/and/not, comparisons,
// +-, */, unary, power, postfix (call/index/attr), primary.

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokKeyword, "or") {
		p.advance()
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &BoolOpExpr{Op: "or", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (Expr, error) {
	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(TokKeyword, "and") {
		p.advance()
		y, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		x = &BoolOpExpr{Op: "and", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.at(TokKeyword, "not") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

var cmpOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) parseComparison() (Expr, error) {
	x, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	var ops []string
	var ys []Expr
	for {
		if p.cur().Kind == TokOp && cmpOps[p.cur().Text] {
			op := p.advance().Text
			y, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
			ys = append(ys, y)
			continue
		}
		if p.at(TokKeyword, "in") {
			p.advance()
			y, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			ops = append(ops, "in")
			ys = append(ys, y)
			continue
		}
		break
	}
	if len(ops) == 0 {
		return x, nil
	}
	return &CompareExpr{X: x, Ops: ops, Ys: ys}, nil
}

func (p *parser) parseAddSub() (Expr, error) {
	x, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokOp && (p.cur().Text == "+" || p.cur().Text == "-") {
		op := p.advance().Text
		y, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseMulDiv() (Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokOp && (p.cur().Text == "*" || p.cur().Text == "/" || p.cur().Text == "//" || p.cur().Text == "%") {
		op := p.advance().Text
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.cur().Kind == TokOp && (p.cur().Text == "-" || p.cur().Text == "+") {
		op := p.advance().Text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, X: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	x, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.at(TokOp, "**") {
		p.advance()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: "**", X: x, Y: y}, nil
	}
	return x, nil
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(TokOp, "."):
			p.advance()
			name, err := p.expect(TokIdent, "")
			if err != nil {
				return nil, err
			}
			x = &AttrExpr{X: x, Name: name.Text}
		case p.at(TokOp, "("):
			p.advance()
			var args []Expr
			for !p.at(TokOp, ")") {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.at(TokOp, ",") {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(TokOp, ")"); err != nil {
				return nil, err
			}
			x = &CallExpr{Fn: x, Args: args}
		case p.at(TokOp, "["):
			p.advance()
			idx, sliceExpr, err := p.parseSubscript(x)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokOp, "]"); err != nil {
				return nil, err
			}
			if sliceExpr != nil {
				x = sliceExpr
			} else {
				x = &IndexExpr{X: x, Idx: idx}
			}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseSubscript(x Expr) (Expr, Expr, error) {
	var lo, hi, step Expr
	var err error
	isSlice := false

	if !p.at(TokOp, ":") {
		lo, err = p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
	}
	if p.at(TokOp, ":") {
		isSlice = true
		p.advance()
		if !p.at(TokOp, ":") && !p.at(TokOp, "]") {
			hi, err = p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
		}
		if p.at(TokOp, ":") {
			p.advance()
			if !p.at(TokOp, "]") {
				step, err = p.parseExpr()
				if err != nil {
					return nil, nil, err
				}
			}
		}
	}
	if isSlice {
		return nil, &SliceExpr{X: x, Lo: lo, Hi: hi, St: step}, nil
	}
	return lo, nil, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch {
	case t.Kind == TokNumber:
		p.advance()
		v, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("interp: bad number %q at line %d", t.Text, t.Line)
		}
		return &NumberLit{Value: v}, nil
	case t.Kind == TokString:
		p.advance()
		return &StringLit{Value: t.Text}, nil
	case t.Kind == TokFString:
		p.advance()
		return parseFString(t.Text)
	case t.Kind == TokKeyword && t.Text == "True":
		p.advance()
		return &BoolLit{Value: true}, nil
	case t.Kind == TokKeyword && t.Text == "False":
		p.advance()
		return &BoolLit{Value: false}, nil
	case t.Kind == TokKeyword && t.Text == "None":
		p.advance()
		return &NoneLit{}, nil
	case t.Kind == TokIdent:
		p.advance()
		return &NameExpr{Name: t.Text}, nil
	case p.at(TokOp, "("):
		p.advance()
		if p.at(TokOp, ")") {
			p.advance()
			return &TupleLit{}, nil
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.at(TokOp, ",") {
			elems := []Expr{x}
			for p.at(TokOp, ",") {
				p.advance()
				if p.at(TokOp, ")") {
					break
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
			}
			if _, err := p.expect(TokOp, ")"); err != nil {
				return nil, err
			}
			return &TupleLit{Elems: elems}, nil
		}
		if _, err := p.expect(TokOp, ")"); err != nil {
			return nil, err
		}
		return x, nil
	case p.at(TokOp, "["):
		p.advance()
		var elems []Expr
		for !p.at(TokOp, "]") {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.at(TokOp, ",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokOp, "]"); err != nil {
			return nil, err
		}
		return &ListLit{Elems: elems}, nil
	case p.at(TokOp, "{"):
		p.advance()
		d := &DictLit{}
		for !p.at(TokOp, "}") {
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokOp, ":"); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			d.Keys = append(d.Keys, k)
			d.Values = append(d.Values, v)
			if p.at(TokOp, ",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokOp, "}"); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("interp: unexpected token %v at line %d", t, t.Line)
	}
}

// parseFString splits an f-string's literal text on {expr} boundaries and
// parses each interpolation as a nested expression.
func parseFString(raw string) (Expr, error) {
	var parts []Expr
	var lits []string
	i := 0
	var lit []rune
	for i < len(raw) {
		if raw[i] == '{' {
			lits = append(lits, string(lit))
			lit = nil
			j := i + 1
			depth := 1
			for j < len(raw) && depth > 0 {
				if raw[j] == '{' {
					depth++
				}
				if raw[j] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				j++
			}
			exprSrc := raw[i+1 : j]
			sub, err := Parse(exprSrc)
			if err != nil {
				return nil, fmt.Errorf("interp: f-string expression: %w", err)
			}
			if len(sub) != 1 {
				return nil, fmt.Errorf("interp: f-string expects a single expression")
			}
			es, ok := sub[0].(*ExprStmt)
			if !ok {
				return nil, fmt.Errorf("interp: f-string expects an expression")
			}
			parts = append(parts, es.X)
			i = j + 1
			continue
		}
		lit = append(lit, rune(raw[i]))
		i++
	}
	lits = append(lits, string(lit))
	return &FStringLit{Parts: parts, Raw: lits}, nil
}
