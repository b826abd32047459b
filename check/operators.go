package check

import "droplet/lexer"

// overloadNames mirrors the parser's operator-declaration table (§4.4's
// "canonical name" list); kept as its own table here because the checker
// is the side that performs overload *resolution*, the parser only
// recognizes the declaration syntax.
var overloadNames = map[lexer.TokenType]string{
	lexer.TOKEN_PLUS:    "op$add",
	lexer.TOKEN_MINUS:   "op$sub",
	lexer.TOKEN_STAR:    "op$mul",
	lexer.TOKEN_SLASH:   "op$div",
	lexer.TOKEN_PERCENT: "op$mod",
	lexer.TOKEN_EQ:      "op$eq",
	lexer.TOKEN_NEQ:     "op$neq",
	lexer.TOKEN_LT:      "op$lt",
	lexer.TOKEN_LTE:     "op$lte",
	lexer.TOKEN_GT:      "op$gt",
	lexer.TOKEN_GTE:     "op$gte",
	lexer.TOKEN_NOT:     "op$not",
}

const indexGetOverload = "op$index_get"
