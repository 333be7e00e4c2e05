// Package lexer implements the handwritten tokenizer for the website
// configuration language: keyword/string/number literals plus the
// context-sensitive raw-block and bracketed-identifier-list behaviors
// described by the language grammar.
package lexer

// TokenType discriminates the kind of lexeme a Token carries.
type TokenType int

const (
	TokenWebsite TokenType = iota
	TokenPages
	TokenPage
	TokenStyles
	TokenRoute
	TokenLayout
	TokenName
	TokenAuthor
	TokenVersion
	TokenAlt
	TokenLayouts
	TokenPort
	TokenAPI
	TokenMethod
	TokenExecuteQuery
	TokenQuery
	TokenSQL
	TokenDatabase
	TokenHTML
	TokenCSS
	TokenNumber
	TokenJQ
	TokenLua
	TokenPipeline
	TokenDynamic
	TokenTransform
	TokenScript
	TokenExecuteTransform
	TokenExecuteScript
	TokenInclude
	TokenError
	TokenSuccess
	TokenReferenceData
	TokenEnvVar
	TokenAuth
	TokenSalt
	TokenGithub
	TokenClientID
	TokenClientSecret
	TokenEmail
	TokenSendgrid
	TokenFromEmail
	TokenFromName
	TokenAPIKey
	TokenTemplate
	TokenSubject

	TokenString
	TokenOpenBrace
	TokenCloseBrace
	TokenOpenParen
	TokenCloseParen
	TokenEOF
	TokenUnknown
	TokenRawBlock
	TokenRawString
	TokenOpenBracket
	TokenCloseBracket
	TokenComma
	TokenFields
	TokenRange
	TokenParams
	TokenMustache
	TokenRedirect
	TokenPartial
)

var tokenTypeNames = map[TokenType]string{
	TokenWebsite:          "WEBSITE",
	TokenPages:            "PAGES",
	TokenPage:             "PAGE",
	TokenStyles:           "STYLES",
	TokenRoute:            "ROUTE",
	TokenLayout:           "LAYOUT",
	TokenName:             "NAME",
	TokenAuthor:           "AUTHOR",
	TokenVersion:          "VERSION",
	TokenAlt:              "ALT",
	TokenLayouts:          "LAYOUTS",
	TokenPort:             "PORT",
	TokenAPI:              "API",
	TokenMethod:           "METHOD",
	TokenExecuteQuery:     "EXECUTE_QUERY",
	TokenQuery:            "QUERY",
	TokenSQL:              "SQL",
	TokenDatabase:         "DATABASE",
	TokenHTML:             "HTML",
	TokenCSS:              "CSS",
	TokenNumber:           "NUMBER",
	TokenJQ:               "JQ",
	TokenLua:              "LUA",
	TokenPipeline:         "PIPELINE",
	TokenDynamic:          "DYNAMIC",
	TokenTransform:        "TRANSFORM",
	TokenScript:           "SCRIPT",
	TokenExecuteTransform: "EXECUTE_TRANSFORM",
	TokenExecuteScript:    "EXECUTE_SCRIPT",
	TokenInclude:          "INCLUDE",
	TokenError:            "ERROR",
	TokenSuccess:          "SUCCESS",
	TokenReferenceData:    "REFERENCE_DATA",
	TokenEnvVar:           "ENV_VAR",
	TokenAuth:             "AUTH",
	TokenSalt:             "SALT",
	TokenGithub:           "GITHUB",
	TokenClientID:         "CLIENT_ID",
	TokenClientSecret:     "CLIENT_SECRET",
	TokenEmail:            "EMAIL",
	TokenSendgrid:         "SENDGRID",
	TokenFromEmail:        "FROM_EMAIL",
	TokenFromName:         "FROM_NAME",
	TokenAPIKey:           "API_KEY",
	TokenTemplate:         "TEMPLATE",
	TokenSubject:          "SUBJECT",
	TokenString:           "STRING",
	TokenOpenBrace:        "OPEN_BRACE",
	TokenCloseBrace:       "CLOSE_BRACE",
	TokenOpenParen:        "OPEN_PAREN",
	TokenCloseParen:       "CLOSE_PAREN",
	TokenEOF:              "EOF",
	TokenUnknown:          "UNKNOWN",
	TokenRawBlock:         "RAW_BLOCK",
	TokenRawString:        "RAW_STRING",
	TokenOpenBracket:      "OPEN_BRACKET",
	TokenCloseBracket:     "CLOSE_BRACKET",
	TokenComma:            "COMMA",
	TokenFields:           "FIELDS",
	TokenRange:            "RANGE",
	TokenParams:           "PARAMS",
	TokenMustache:         "MUSTACHE",
	TokenRedirect:         "REDIRECT",
	TokenPartial:          "PARTIAL",
}

// String returns the token type's canonical name, used in diagnostics.
func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return "INVALID"
}

var keywords = map[string]TokenType{
	"website":           TokenWebsite,
	"html":              TokenHTML,
	"css":               TokenCSS,
	"pages":             TokenPages,
	"database":          TokenDatabase,
	"page":              TokenPage,
	"styles":            TokenStyles,
	"route":             TokenRoute,
	"layout":            TokenLayout,
	"name":              TokenName,
	"author":            TokenAuthor,
	"version":           TokenVersion,
	"alt":               TokenAlt,
	"layouts":           TokenLayouts,
	"port":              TokenPort,
	"api":               TokenAPI,
	"method":            TokenMethod,
	"executeQuery":      TokenExecuteQuery,
	"query":             TokenQuery,
	"sql":               TokenSQL,
	"fields":            TokenFields,
	"jq":                TokenJQ,
	"lua":               TokenLua,
	"pipeline":          TokenPipeline,
	"dynamic":           TokenDynamic,
	"params":            TokenParams,
	"transform":         TokenTransform,
	"script":            TokenScript,
	"executeTransform":  TokenExecuteTransform,
	"executeScript":     TokenExecuteScript,
	"mustache":          TokenMustache,
	"include":           TokenInclude,
	"redirect":          TokenRedirect,
	"error":             TokenError,
	"success":           TokenSuccess,
	"referenceData":     TokenReferenceData,
	"partial":           TokenPartial,
	"auth":              TokenAuth,
	"salt":              TokenSalt,
	"github":            TokenGithub,
	"clientId":          TokenClientID,
	"clientSecret":      TokenClientSecret,
	"email":             TokenEmail,
	"sendgrid":          TokenSendgrid,
	"fromEmail":         TokenFromEmail,
	"fromName":          TokenFromName,
	"apiKey":            TokenAPIKey,
	"template":          TokenTemplate,
	"subject":           TokenSubject,
}

// Token is one lexical unit: a kind, the verbatim (or decoded) text, and
// the 1-indexed source line it started on.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
}
