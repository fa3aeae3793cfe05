package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var SIRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `;[^\n]*`, nil},

		// Keywords and identifiers (value names may carry dotted versions)
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.]*`, nil},

		// Integer literals
		{"Integer", `-?[0-9]+`, nil},

		// Punctuation
		{"Punctuation", `[@%(){}\[\]:,=]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
