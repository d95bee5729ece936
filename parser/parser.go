package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// parser is the internal recursive-descent parser. Use the exported Parse
// function as the public entry point.
type parser struct {
	lexer *Lexer
	cur   Token
}

// Parse parses a single SQL statement from input.
func Parse(input string) (Statement, error) {
	p := &parser{lexer: NewLexer(input)}
	p.next()

	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	// Allow an optional trailing semicolon.
	if p.cur.Type == TokenSemicolon {
		p.next()
	}
	if p.cur.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected %q after statement at position %d",
			p.cur.Literal, p.cur.Pos)
	}
	return stmt, nil
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func (p *parser) next() {
	p.cur = p.lexer.NextToken()
}

func (p *parser) expect(t TokenType) (Token, error) {
	tok := p.cur
	if tok.Type != t {
		return tok, fmt.Errorf("expected %s, got %q at position %d",
			t, tok.Literal, tok.Pos)
	}
	p.next()
	return tok, nil
}

func (p *parser) unexpected() error {
	if p.cur.Type == TokenEOF {
		return fmt.Errorf("unexpected end of input")
	}
	return fmt.Errorf("unexpected %q at position %d", p.cur.Literal, p.cur.Pos)
}

// -------------------------------------------------------------------------
// Statement parsing
// -------------------------------------------------------------------------

func (p *parser) parseStatement() (Statement, error) {
	switch p.cur.Type {
	case TokenCreate:
		return p.parseCreate()
	case TokenDrop:
		return p.parseDrop()
	case TokenAlter:
		return p.parseAlterTable()
	case TokenInsert:
		return p.parseInsert()
	case TokenSelect:
		return p.parseSelect()
	case TokenUpdate:
		return p.parseUpdate()
	case TokenDelete:
		return p.parseDelete()
	case TokenBegin:
		p.next()
		if p.cur.Type == TokenTransaction {
			p.next()
		}
		return &BeginStmt{}, nil
	case TokenCommit:
		p.next()
		return &CommitStmt{}, nil
	case TokenRollback:
		p.next()
		return &RollbackStmt{}, nil
	case TokenAbort:
		p.next()
		return &AbortStmt{}, nil
	case TokenShow:
		p.next()
		if _, err := p.expect(TokenMemory); err != nil {
			return nil, err
		}
		return &ShowMemoryStmt{}, nil
	default:
		return nil, p.unexpected()
	}
}

func (p *parser) parseTableRef() (TableRef, error) {
	name, err := p.expect(TokenIdent)
	if err != nil {
		return TableRef{}, err
	}
	if p.cur.Type == TokenDot {
		p.next() // skip dot
		second, err := p.expect(TokenIdent)
		if err != nil {
			return TableRef{}, err
		}
		return TableRef{Schema: name.Literal, Name: second.Literal}, nil
	}
	return TableRef{Name: name.Literal}, nil
}

// parseCreate dispatches CREATE TABLE vs CREATE [UNIQUE] INDEX.
func (p *parser) parseCreate() (Statement, error) {
	if p.peekIsIndexStart() {
		return p.parseCreateIndex()
	}
	return p.parseCreateTable()
}

// peekIsIndexStart reports whether the token after CREATE starts an INDEX
// statement (INDEX or UNIQUE INDEX), without consuming input.
func (p *parser) peekIsIndexStart() bool {
	save := *p.lexer
	savedCur := p.cur
	p.next()
	isIndex := p.cur.Type == TokenIndex || p.cur.Type == TokenUnique
	*p.lexer = save
	p.cur = savedCur
	return isIndex
}

// parseCreateIndex parses CREATE [UNIQUE] INDEX [<name>] ON <table> (<column>).
func (p *parser) parseCreateIndex() (*CreateIndexStmt, error) {
	p.next() // skip CREATE
	unique := false
	if p.cur.Type == TokenUnique {
		unique = true
		p.next()
	}
	if _, err := p.expect(TokenIndex); err != nil {
		return nil, err
	}
	var name string
	if p.cur.Type == TokenIdent {
		name = p.cur.Literal
		p.next()
	}
	if _, err := p.expect(TokenOn); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	col, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &CreateIndexStmt{Table: ref, Name: name, Column: col.Literal, Unique: unique}, nil
}

func (p *parser) parseCreateTable() (*CreateTableStmt, error) {
	p.next() // skip CREATE
	if _, err := p.expect(TokenTable); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var columns []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
		if p.cur.Type != TokenComma {
			break
		}
		p.next() // skip comma
	}

	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	// Validate at most one column is marked PRIMARY KEY.
	pkCount := 0
	for _, col := range columns {
		if col.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return nil, fmt.Errorf("multiple primary keys are not allowed")
	}

	return &CreateTableStmt{Name: ref, Columns: columns}, nil
}

func (p *parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expect(TokenIdent)
	if err != nil {
		return ColumnDef{}, err
	}

	var dataType string
	var sizeHint int
	switch p.cur.Type {
	case TokenIntegerKW:
		dataType = "INTEGER"
		p.next()
	case TokenFloatKW:
		dataType = "FLOAT"
		p.next()
	case TokenTextKW:
		dataType = "TEXT"
		p.next()
	case TokenBooleanKW:
		dataType = "BOOLEAN"
		p.next()
	case TokenVarcharKW, TokenCharKW:
		if p.cur.Type == TokenVarcharKW {
			dataType = "VARCHAR"
		} else {
			dataType = "CHAR"
		}
		p.next()
		if p.cur.Type == TokenLParen {
			p.next()
			n, err := p.expect(TokenIntLit)
			if err != nil {
				return ColumnDef{}, err
			}
			size, err := strconv.Atoi(n.Literal)
			if err != nil {
				return ColumnDef{}, fmt.Errorf("invalid size %q: %w", n.Literal, err)
			}
			sizeHint = size
			if _, err := p.expect(TokenRParen); err != nil {
				return ColumnDef{}, err
			}
		}
	default:
		return ColumnDef{}, fmt.Errorf("expected data type, got %q at position %d",
			p.cur.Literal, p.cur.Pos)
	}

	col := ColumnDef{Name: name.Literal, DataType: dataType, SizeHint: sizeHint}

	// Constraints may appear in either order: PRIMARY KEY, NOT NULL, FOREIGN KEY REFERENCES t(c).
	for {
		switch p.cur.Type {
		case TokenPrimary:
			p.next()
			if _, err := p.expect(TokenKey); err != nil {
				return ColumnDef{}, err
			}
			col.PrimaryKey = true
			continue
		case TokenNot:
			p.next()
			if _, err := p.expect(TokenNull); err != nil {
				return ColumnDef{}, err
			}
			col.NotNull = true
			continue
		case TokenForeign:
			p.next()
			if _, err := p.expect(TokenKey); err != nil {
				return ColumnDef{}, err
			}
			if _, err := p.expect(TokenReferences); err != nil {
				return ColumnDef{}, err
			}
			refTable, err := p.expect(TokenIdent)
			if err != nil {
				return ColumnDef{}, err
			}
			if _, err := p.expect(TokenLParen); err != nil {
				return ColumnDef{}, err
			}
			refCol, err := p.expect(TokenIdent)
			if err != nil {
				return ColumnDef{}, err
			}
			if _, err := p.expect(TokenRParen); err != nil {
				return ColumnDef{}, err
			}
			col.ForeignKey = &ForeignKeyRef{Table: refTable.Literal, Column: refCol.Literal}
			continue
		}
		break
	}

	return col, nil
}

// parseDrop dispatches DROP TABLE vs DROP INDEX.
func (p *parser) parseDrop() (Statement, error) {
	save := *p.lexer
	savedCur := p.cur
	p.next()
	isIndex := p.cur.Type == TokenIndex
	*p.lexer = save
	p.cur = savedCur
	if isIndex {
		return p.parseDropIndex()
	}
	return p.parseDropTable()
}

// parseDropIndex parses DROP INDEX <name> ON <table>.
func (p *parser) parseDropIndex() (*DropIndexStmt, error) {
	p.next() // skip DROP
	if _, err := p.expect(TokenIndex); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenOn); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	return &DropIndexStmt{Table: ref, Name: name.Literal}, nil
}

func (p *parser) parseDropTable() (*DropTableStmt, error) {
	p.next() // skip DROP
	if _, err := p.expect(TokenTable); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	behavior := DropDefault
	switch p.cur.Type {
	case TokenCascade:
		p.next()
		behavior = DropCascade
	case TokenRestrict:
		p.next()
		behavior = DropRestrict
	}
	return &DropTableStmt{Name: ref, Behavior: behavior}, nil
}

// parseAlterTable parses ALTER TABLE <table> ADD COLUMN <coldef>
// and ALTER TABLE <table> DROP COLUMN <name>.
func (p *parser) parseAlterTable() (Statement, error) {
	p.next() // skip ALTER
	if _, err := p.expect(TokenTable); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	switch p.cur.Type {
	case TokenAdd:
		p.next()
		if p.cur.Type == TokenColumn {
			p.next()
		}
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		return &AlterTableAddColumnStmt{Table: ref, Column: col}, nil
	case TokenDrop:
		p.next()
		if p.cur.Type == TokenColumn {
			p.next()
		}
		name, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		return &AlterTableDropColumnStmt{Table: ref, Column: name.Literal}, nil
	default:
		return nil, p.unexpected()
	}
}

func (p *parser) parseInsert() (*InsertStmt, error) {
	p.next() // skip INSERT
	if _, err := p.expect(TokenInto); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}

	// Optional column list.
	var columns []string
	if p.cur.Type == TokenLParen {
		p.next()
		for {
			col, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			columns = append(columns, col.Literal)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(TokenValues); err != nil {
		return nil, err
	}

	var values [][]Expr
	for {
		row, err := p.parseValueRow()
		if err != nil {
			return nil, err
		}
		values = append(values, row)
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}

	return &InsertStmt{Table: ref, Columns: columns, Values: values}, nil
}

func (p *parser) parseValueRow() ([]Expr, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var exprs []Expr
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return exprs, nil
}

func (p *parser) parseSelect() (*SelectStmt, error) {
	p.next() // skip SELECT

	var columns []Expr
	for {
		if p.cur.Type == TokenStar {
			columns = append(columns, &StarExpr{})
			p.next()
		} else {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.cur.Type == TokenAs {
				p.next() // consume AS
				alias, err := p.expect(TokenIdent)
				if err != nil {
					return nil, err
				}
				expr = &AliasExpr{Expr: expr, Alias: alias.Literal}
			}
			columns = append(columns, expr)
		}
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}

	var from TableRef
	var fromAlias string
	var indexedBy string
	var joins []JoinClause
	var err error
	if p.cur.Type == TokenFrom {
		p.next() // consume FROM
		from, err = p.parseTableRef()
		if err != nil {
			return nil, err
		}
		// Optional alias for FROM table.
		if p.cur.Type == TokenIdent && !isSelectClauseKeyword(p.cur.Literal) {
			fromAlias = p.cur.Literal
			p.next()
		}
		// Optional INDEXED BY <name> query hint.
		if p.cur.Type == TokenIndexed {
			p.next()
			if _, err := p.expect(TokenBy); err != nil {
				return nil, err
			}
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			indexedBy = name.Literal
		}
		// Parse JOIN clauses.
		for p.cur.Type == TokenJoin || p.cur.Type == TokenInner || p.cur.Type == TokenNatural {
			kind := JoinInner
			if p.cur.Type == TokenNatural {
				p.next() // consume NATURAL
				kind = JoinNatural
				if p.cur.Type == TokenInner {
					p.next()
				}
				if _, err := p.expect(TokenJoin); err != nil {
					return nil, err
				}
			} else if p.cur.Type == TokenInner {
				p.next() // consume INNER
				if _, err := p.expect(TokenJoin); err != nil {
					return nil, err
				}
			} else {
				p.next() // consume JOIN
			}
			joinRef, err := p.parseTableRef()
			if err != nil {
				return nil, err
			}
			var joinAlias string
			if p.cur.Type == TokenIdent && !isSelectClauseKeyword(p.cur.Literal) {
				joinAlias = p.cur.Literal
				p.next()
			}
			var onExpr Expr
			if kind != JoinNatural {
				if _, err := p.expect(TokenOn); err != nil {
					return nil, err
				}
				onExpr, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
			joins = append(joins, JoinClause{Kind: kind, Table: joinRef, Alias: joinAlias, On: onExpr})
		}
	}

	var where Expr
	if p.cur.Type == TokenWhere {
		p.next()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}

	// Parse optional ORDER BY col [ASC|DESC] [, col [ASC|DESC], ...]
	var orderBy []OrderByClause
	if p.cur.Type == TokenOrder {
		p.next() // consume ORDER
		if _, err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		for {
			col, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			clause := OrderByClause{Column: col.Literal}
			// Check for qualified name: table.column
			if p.cur.Type == TokenDot {
				p.next() // consume dot
				second, err := p.expect(TokenIdent)
				if err != nil {
					return nil, err
				}
				clause.Table = clause.Column
				clause.Column = second.Literal
			}
			if p.cur.Type == TokenDesc {
				clause.Desc = true
				p.next()
			} else if p.cur.Type == TokenAsc {
				p.next()
			}
			orderBy = append(orderBy, clause)
			if p.cur.Type != TokenComma {
				break
			}
			p.next() // consume comma
		}
	}

	// Parse optional LIMIT and OFFSET (in either order).
	var limit, offset *int64
	for i := 0; i < 2; i++ {
		if p.cur.Type == TokenLimit && limit == nil {
			p.next()
			tok, err := p.expect(TokenIntLit)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseInt(tok.Literal, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid LIMIT value %q: %w", tok.Literal, err)
			}
			limit = &v
		} else if p.cur.Type == TokenOffset && offset == nil {
			p.next()
			tok, err := p.expect(TokenIntLit)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseInt(tok.Literal, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid OFFSET value %q: %w", tok.Literal, err)
			}
			offset = &v
		} else {
			break
		}
	}

	return &SelectStmt{
		Columns:   columns,
		From:      from,
		FromAlias: fromAlias,
		Joins:     joins,
		Where:     where,
		OrderBy:   orderBy,
		Limit:     limit,
		Offset:    offset,
		IndexedBy: indexedBy,
	}, nil
}

// isSelectClauseKeyword returns true if the identifier (case-insensitive) is a
// keyword that starts a SELECT clause, and thus should not be consumed as an alias.
func isSelectClauseKeyword(ident string) bool {
	switch strings.ToUpper(ident) {
	case "WHERE", "ORDER", "LIMIT", "OFFSET", "JOIN", "INNER", "ON",
		"LEFT", "RIGHT", "OUTER", "CROSS", "FULL", "GROUP", "HAVING":
		return true
	}
	return false
}

func (p *parser) parseUpdate() (*UpdateStmt, error) {
	p.next() // skip UPDATE
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSet); err != nil {
		return nil, err
	}

	var sets []SetClause
	for {
		col, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenEq); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sets = append(sets, SetClause{Column: col.Literal, Value: val})
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}

	var where Expr
	if p.cur.Type == TokenWhere {
		p.next()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}

	return &UpdateStmt{Table: ref, Sets: sets, Where: where}, nil
}

func (p *parser) parseDelete() (*DeleteStmt, error) {
	p.next() // skip DELETE
	if _, err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}

	var where Expr
	if p.cur.Type == TokenWhere {
		p.next()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}

	return &DeleteStmt{Table: ref, Where: where}, nil
}

// -------------------------------------------------------------------------
// Expression parsing (precedence: OR < AND < comparison < primary)
// -------------------------------------------------------------------------

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: "OR", Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: "AND", Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.cur.Type == TokenNot {
		p.next()
		if p.cur.Type == TokenExists {
			return p.parseExists(true)
		}
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil
	}
	if p.cur.Type == TokenExists {
		return p.parseExists(false)
	}
	return p.parseComparison()
}

// parseExists parses EXISTS (SELECT ...) / NOT EXISTS (SELECT ...).
func (p *parser) parseExists(negate bool) (Expr, error) {
	p.next() // consume EXISTS
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	if p.cur.Type != TokenSelect {
		return nil, fmt.Errorf("expected SELECT inside EXISTS(...) at position %d", p.cur.Pos)
	}
	sub, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &ExistsExpr{Subquery: sub, Negate: negate}, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if p.cur.Type == TokenIs {
		p.next()
		not := false
		if p.cur.Type == TokenNot {
			not = true
			p.next()
		}
		if _, err := p.expect(TokenNull); err != nil {
			return nil, err
		}
		return &IsNullExpr{Expr: left, Not: not}, nil
	}

	negate := false
	if p.cur.Type == TokenNot {
		p.next()
		negate = true
	}
	switch p.cur.Type {
	case TokenIn:
		return p.parseIn(left, negate)
	case TokenBetween:
		return p.parseBetween(left, negate)
	case TokenLike:
		return p.parseLike(left, negate, false)
	case TokenILike:
		return p.parseLike(left, negate, true)
	}
	if negate {
		return nil, p.unexpected()
	}

	var op string
	switch p.cur.Type {
	case TokenEq:
		op = "="
	case TokenNotEq:
		op = "!="
	case TokenLt:
		op = "<"
	case TokenGt:
		op = ">"
	case TokenLtEq:
		op = "<="
	case TokenGtEq:
		op = ">="
	default:
		return left, nil
	}

	p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Left: left, Op: op, Right: right}, nil
}

// parseIn parses the tail of <expr> [NOT] IN (<expr>, ...).
func (p *parser) parseIn(left Expr, negate bool) (Expr, error) {
	p.next() // consume IN
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var list []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &InExpr{Expr: left, Values: list, Not: negate}, nil
}

// parseBetween parses the tail of <expr> [NOT] BETWEEN <low> AND <high>.
func (p *parser) parseBetween(left Expr, negate bool) (Expr, error) {
	p.next() // consume BETWEEN
	low, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAnd); err != nil {
		return nil, err
	}
	high, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &BetweenExpr{Expr: left, Low: low, High: high, Negate: negate}, nil
}

// parseLike parses the tail of <expr> [NOT] LIKE|ILIKE <pattern> [ESCAPE <char>].
func (p *parser) parseLike(left Expr, negate, caseInsensitive bool) (Expr, error) {
	p.next() // consume LIKE/ILIKE
	pattern, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var escape Expr
	if p.cur.Type == TokenEscape {
		p.next()
		escape, err = p.parseAdditive()
		if err != nil {
			return nil, err
		}
	}
	return &LikeExpr{Expr: left, Pattern: pattern, Escape: escape, Not: negate, CaseInsensitive: caseInsensitive}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenPlus || p.cur.Type == TokenMinus || p.cur.Type == TokenConcat {
		var op string
		switch p.cur.Type {
		case TokenMinus:
			op = "-"
		case TokenConcat:
			op = "||"
		default:
			op = "+"
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenStar || p.cur.Type == TokenSlash || p.cur.Type == TokenPercent {
		var op string
		switch p.cur.Type {
		case TokenStar:
			op = "*"
		case TokenSlash:
			op = "/"
		case TokenPercent:
			op = "%"
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.cur.Type == TokenMinus {
		p.next()
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur.Type {
	case TokenIntLit:
		val, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", p.cur.Literal, err)
		}
		p.next()
		return &IntegerLit{Value: val}, nil
	case TokenFloatLit:
		val, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", p.cur.Literal, err)
		}
		p.next()
		return &FloatLit{Value: val}, nil
	case TokenStrLit:
		val := p.cur.Literal
		p.next()
		return &StringLit{Value: val}, nil
	case TokenTrue:
		p.next()
		return &BoolLit{Value: true}, nil
	case TokenFalse:
		p.next()
		return &BoolLit{Value: false}, nil
	case TokenNull:
		p.next()
		return &NullLit{}, nil
	case TokenIdent:
		name := p.cur.Literal
		p.next()
		// Check for qualified name: table.column or table.func()
		if p.cur.Type == TokenDot {
			p.next() // consume dot
			second, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			if p.cur.Type == TokenLParen {
				return nil, fmt.Errorf("qualified function calls are not supported at position %d", p.cur.Pos)
			}
			return &ColumnRef{Table: name, Name: second.Literal}, nil
		}
		if p.cur.Type != TokenLParen {
			return &ColumnRef{Name: name}, nil
		}
		// function call: NAME(arg, arg, ...)
		p.next() // consume (
		var args []Expr
		if p.cur.Type == TokenStar {
			args = []Expr{&StarExpr{}}
			p.next()
		} else if p.cur.Type != TokenRParen {
			for {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.cur.Type != TokenComma {
					break
				}
				p.next()
			}
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &FunctionCallExpr{Name: strings.ToUpper(name), Args: args}, nil
	case TokenLParen:
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenCast:
		return p.parseCast()
	default:
		return nil, p.unexpected()
	}
}

// parseCast parses CAST(<expr> AS <type>).
func (p *parser) parseCast() (Expr, error) {
	p.next() // consume CAST
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAs); err != nil {
		return nil, err
	}
	typeName, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &CastExpr{Expr: expr, TypeName: typeName}, nil
}

// parseTypeName consumes a data-type keyword, optionally followed by (n),
// and returns its canonical name.
func (p *parser) parseTypeName() (string, error) {
	var name string
	switch p.cur.Type {
	case TokenIntegerKW:
		name = "INTEGER"
	case TokenFloatKW:
		name = "FLOAT"
	case TokenTextKW:
		name = "TEXT"
	case TokenBooleanKW:
		name = "BOOLEAN"
	case TokenVarcharKW:
		name = "VARCHAR"
	case TokenCharKW:
		name = "CHAR"
	default:
		return "", fmt.Errorf("expected data type, got %q at position %d", p.cur.Literal, p.cur.Pos)
	}
	p.next()
	if p.cur.Type == TokenLParen {
		p.next()
		if _, err := p.expect(TokenIntLit); err != nil {
			return "", err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return "", err
		}
	}
	return name, nil
}
