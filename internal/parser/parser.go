// Package parser implements a handwritten, single-lookahead recursive
// descent parser for the website configuration language. It turns a
// lexer.Token stream into an *ast.Site.
//
// Error handling uses a sticky flag: an unrecognized token inside a block
// records an error and sets the flag, and every block loop checks it, so
// the failing block and all enclosing blocks stop and parsing ends at the
// first error. Later declarations are not parsed, so errors in them are
// not reported.
package parser

import (
	"fmt"

	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/lexer"
	"github.com/williamcotton/webdsl/internal/value"
)

// Include is a deferred `include "path"` directive collected while parsing
// a single file. Resolution (reading the referenced file, recursing, and
// merging) happens one layer up, in LoadSite, so Parser itself never touches
// the filesystem.
type Include struct {
	Path string
	Pos  ast.Position
}

// Parser holds the token cursor and accumulated diagnostics for one file.
type Parser struct {
	filename string
	lex      *lexer.Lexer
	current  lexer.Token
	previous lexer.Token
	errs     []error
	hadError bool
	includes []Include
}

// Parse tokenizes and parses a single source buffer into a Site, along with
// any include directives found at the top level. filename is used only for
// diagnostics and Position values.
func Parse(source, filename string) (*ast.Site, []Include, error) {
	p := &Parser{filename: filename, lex: lexer.New(source)}
	p.advance()
	site := p.parseWebsite()
	if p.hadError {
		return site, p.includes, fmt.Errorf("parser: %d error(s) in %s: %w", len(p.errs), filename, errJoin(p.errs))
	}
	return site, p.includes, nil
}

func errJoin(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

func (p *Parser) pos() ast.Position {
	return ast.Position{Filename: p.filename, Line: p.current.Line}
}

func (p *Parser) advance() {
	p.previous = p.current
	p.current = p.lex.Next()
}

func (p *Parser) check(t lexer.TokenType) bool { return p.current.Type == t }

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, errMsg string) bool {
	if p.current.Type == t {
		p.advance()
		return true
	}
	p.errs = append(p.errs, fmt.Errorf("%s: line %d: %s (got %q)", p.filename, p.current.Line, errMsg, p.current.Lexeme))
	p.hadError = true
	return false
}

func (p *Parser) fail(format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf("%s: line %d: %s", p.filename, p.current.Line, fmt.Sprintf(format, args...)))
	p.hadError = true
}

// parseValue reads either a string literal or an environment reference,
// deferring resolution to runtime.
func (p *Parser) parseValue(what string) ast.Value {
	switch {
	case p.check(lexer.TokenEnvVar):
		name := p.current.Lexeme
		p.advance()
		return value.NewEnvVar(name)
	case p.check(lexer.TokenString):
		s := p.current.Lexeme
		p.advance()
		return value.NewString(s)
	default:
		p.fail("expected string or environment reference for %s", what)
		return value.Null()
	}
}

func parsePort(lexeme string) (int, bool) {
	n := 0
	if lexeme == "" {
		return 0, false
	}
	for i := 0; i < len(lexeme); i++ {
		c := lexeme[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 || n > 65535 {
		return 0, false
	}
	return n, true
}

// parseWebsite parses the top-level `website { ... }` block.
func (p *Parser) parseWebsite() *ast.Site {
	site := &ast.Site{}

	p.consume(lexer.TokenWebsite, "expected 'website' at start")
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'website'")

	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenName:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'name'")
			site.Name = p.previous.Lexeme
		case lexer.TokenAuthor:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'author'")
			site.Author = p.previous.Lexeme
		case lexer.TokenVersion:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'version'")
			site.Version = p.previous.Lexeme
		case lexer.TokenPort:
			p.advance()
			if !p.check(lexer.TokenNumber) {
				p.fail("expected number after 'port'")
				break
			}
			n, ok := parsePort(p.current.Lexeme)
			if !ok {
				p.fail("invalid port number %q (must be between 1 and 65535)", p.current.Lexeme)
				break
			}
			site.Port = value.NewNumber(n)
			p.advance()
		case lexer.TokenDatabase:
			p.advance()
			site.DatabaseURL = p.parseValue("'database'")
		case lexer.TokenAuth:
			p.advance()
			site.Auth = p.parseAuth()
		case lexer.TokenEmail:
			p.advance()
			site.Email = p.parseEmailConfig()
		case lexer.TokenPages:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'pages'")
			site.Pages = p.parsePages()
		case lexer.TokenStyles:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'styles'")
			site.Styles = p.parseStyles()
		case lexer.TokenLayouts:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'layouts'")
			site.Layouts = p.parseLayouts()
		case lexer.TokenAPI:
			p.advance()
			site.APIs = append(site.APIs, p.parseAPI())
		case lexer.TokenQuery:
			p.advance()
			site.Queries = append(site.Queries, p.parseQuery())
		case lexer.TokenTransform:
			p.advance()
			site.Transforms = append(site.Transforms, p.parseTransform())
		case lexer.TokenScript:
			p.advance()
			site.Scripts = append(site.Scripts, p.parseScript())
		case lexer.TokenPartial:
			p.advance()
			site.Partials = append(site.Partials, p.parsePartial())
		case lexer.TokenInclude:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'include'")
			path := p.previous.Lexeme
			p.includes = append(p.includes, Include{Path: path, Pos: p.pos()})
		case lexer.TokenString:
			// generic string-keyed property, e.g. baseUrl "..."
			key := p.current.Lexeme
			p.advance()
			p.consume(lexer.TokenString, fmt.Sprintf("expected string value after %q", key))
			if key == "baseUrl" {
				site.BaseURL = p.previous.Lexeme
			} else {
				p.fail("unknown website property %q", key)
			}
		default:
			p.fail("unexpected token %q in website block", p.current.Lexeme)
		}
	}

	p.consume(lexer.TokenCloseBrace, "expected '}' at end of website block")
	return site
}

func (p *Parser) parseAuth() *ast.Auth {
	auth := &ast.Auth{}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'auth'")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenSalt:
			p.advance()
			auth.Salt = p.parseValue("'salt'")
		case lexer.TokenGithub:
			p.advance()
			auth.Github = p.parseGithub()
		default:
			p.fail("unexpected token %q in auth block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after auth block")
	return auth
}

func (p *Parser) parseGithub() *ast.GithubAuth {
	gh := &ast.GithubAuth{}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'github'")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenClientID:
			p.advance()
			gh.ClientID = p.parseValue("'clientId'")
		case lexer.TokenClientSecret:
			p.advance()
			gh.ClientSecret = p.parseValue("'clientSecret'")
		default:
			p.fail("unexpected token %q in github block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after github block")
	return gh
}

func (p *Parser) parseEmailConfig() *ast.Email {
	email := &ast.Email{}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'email'")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenSendgrid:
			p.advance()
			email.SendGrid = p.parseSendGrid()
		case lexer.TokenTemplate:
			p.advance()
			email.Templates = append(email.Templates, p.parseEmailTemplate())
		default:
			p.fail("unexpected token %q in email block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after email block")
	return email
}

func (p *Parser) parseSendGrid() *ast.SendGrid {
	sg := &ast.SendGrid{}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'sendgrid'")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenAPIKey:
			p.advance()
			sg.APIKey = p.parseValue("'apiKey'")
		case lexer.TokenFromEmail:
			p.advance()
			sg.FromEmail = p.parseValue("'fromEmail'")
		case lexer.TokenFromName:
			p.advance()
			sg.FromName = p.parseValue("'fromName'")
		default:
			p.fail("unexpected token %q in sendgrid block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after sendgrid block")
	return sg
}

func (p *Parser) parseEmailTemplate() *ast.EmailTemplate {
	tmpl := &ast.EmailTemplate{}
	p.consume(lexer.TokenString, "expected string for email template name")
	tmpl.Name = p.previous.Lexeme
	p.consume(lexer.TokenOpenBrace, "expected '{' after email template name")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenSubject:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'subject'")
			tmpl.Subject = p.previous.Lexeme
		case lexer.TokenHTML, lexer.TokenMustache:
			tmpl.Template = p.parseTemplateBody()
		default:
			p.fail("unexpected token %q in email template block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after email template block")
	return tmpl
}

// parseTemplateBody consumes a template-introducing keyword (html/mustache)
// followed by its raw block or string content.
func (p *Parser) parseTemplateBody() *ast.Template {
	kind := ast.TemplateHTML
	if p.current.Type == lexer.TokenMustache {
		kind = ast.TemplateMustache
	}
	p.advance()
	if !p.check(lexer.TokenRawBlock) && !p.check(lexer.TokenString) {
		p.fail("expected template block")
		return nil
	}
	content := p.current.Lexeme
	p.advance()
	return &ast.Template{Kind: kind, Content: content}
}

func (p *Parser) parsePartial() *ast.Partial {
	part := &ast.Partial{}
	p.consume(lexer.TokenString, "expected string for partial name")
	part.Name = p.previous.Lexeme
	p.consume(lexer.TokenOpenBrace, "expected '{' after partial name")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenHTML, lexer.TokenMustache:
			part.Template = p.parseTemplateBody()
		default:
			p.fail("unexpected token %q in partial block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after partial block")
	return part
}

func (p *Parser) parsePages() []*ast.Page {
	var pages []*ast.Page
	for p.check(lexer.TokenPage) && !p.hadError {
		pages = append(pages, p.parsePage())
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' at end of pages block")
	return pages
}

func (p *Parser) parsePage() *ast.Page {
	page := &ast.Page{Method: "GET", Pos: p.pos()}
	p.advance() // consume 'page'
	p.consume(lexer.TokenString, "expected string for page identifier")
	page.ID = p.previous.Lexeme
	p.consume(lexer.TokenOpenBrace, "expected '{' after page identifier")

	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenRoute:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'route'")
			page.Route = p.previous.Lexeme
		case lexer.TokenLayout:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'layout'")
			page.Layout = p.previous.Lexeme
		case lexer.TokenMethod:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'method'")
			page.Method = p.previous.Lexeme
		case lexer.TokenRedirect:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'redirect'")
			page.Redirect = p.previous.Lexeme
		case lexer.TokenFields:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'fields'")
			page.Fields = p.parseFields()
		case lexer.TokenPipeline:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'pipeline'")
			page.Pipeline = p.parsePipeline()
		case lexer.TokenReferenceData:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'referenceData'")
			page.ReferenceData = p.parsePipeline()
		case lexer.TokenError:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'error'")
			page.ErrorBlock = p.parseResponseBlock()
		case lexer.TokenSuccess:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'success'")
			page.SuccessBlock = p.parseResponseBlock()
		case lexer.TokenHTML, lexer.TokenMustache:
			page.Template = p.parseTemplateBody()
		case lexer.TokenString:
			// generic string-keyed property, e.g. title "..." / description "..."
			key := p.current.Lexeme
			p.advance()
			p.consume(lexer.TokenString, fmt.Sprintf("expected string value after %q", key))
			switch key {
			case "title":
				page.Title = p.previous.Lexeme
			case "description":
				page.Description = p.previous.Lexeme
			default:
				p.fail("unknown page property %q", key)
			}
		default:
			p.fail("unexpected token %q in page block", p.current.Lexeme)
		}
	}

	p.consume(lexer.TokenCloseBrace, "expected '}' after page block")
	return page
}

func (p *Parser) parseResponseBlock() *ast.ResponseBlock {
	rb := &ast.ResponseBlock{}
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenRedirect:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'redirect'")
			rb.Redirect = p.previous.Lexeme
		case lexer.TokenHTML, lexer.TokenMustache:
			rb.Template = p.parseTemplateBody()
		default:
			p.fail("unexpected token %q in response block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after response block")
	return rb
}

// parseFields parses a `fields { "name" { ... } ... }` block, shared by
// page forms and API JSON bodies.
func (p *Parser) parseFields() []*ast.ApiField {
	var fields []*ast.ApiField
	for p.check(lexer.TokenString) && !p.hadError {
		field := &ast.ApiField{}
		field.Name = p.current.Lexeme
		p.advance()
		p.consume(lexer.TokenOpenBrace, "expected '{' after field name")

		for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
			if !p.check(lexer.TokenString) {
				p.fail("unexpected token %q in field definition", p.current.Lexeme)
				break
			}
			prop := p.current.Lexeme
			p.advance()
			switch prop {
			case "type":
				p.consume(lexer.TokenString, "expected string after 'type'")
				if p.previous.Lexeme == "number" {
					field.Type = ast.FieldNumber
				} else {
					field.Type = ast.FieldString
				}
			case "required":
				p.consume(lexer.TokenString, "expected boolean after 'required'")
				field.Required = p.previous.Lexeme == "true"
			case "format":
				p.consume(lexer.TokenString, "expected string after 'format'")
				field.Format = p.previous.Lexeme
			case "length":
				field.Length = p.parseLengthRange()
			case "validate":
				p.consume(lexer.TokenOpenBrace, "expected '{' after 'validate'")
				p.parseValidateBlock(field)
			default:
				p.fail("unknown field property %q", prop)
			}
		}

		p.consume(lexer.TokenCloseBrace, "expected '}' after field properties")
		fields = append(fields, field)
	}

	p.consume(lexer.TokenCloseBrace, "expected '}' after fields block")
	return fields
}

func (p *Parser) parseLengthRange() ast.LengthRange {
	switch {
	case p.check(lexer.TokenRange):
		lo, hi := splitRange(p.current.Lexeme)
		p.advance()
		return ast.LengthRange{Min: lo, Max: hi, Set: true}
	case p.check(lexer.TokenNumber):
		n := atoiSafe(p.current.Lexeme)
		p.advance()
		return ast.LengthRange{Min: n, Max: n, Set: true}
	default:
		p.fail("expected range or number after 'length'")
		return ast.LengthRange{}
	}
}

func (p *Parser) parseValidateBlock(field *ast.ApiField) {
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		if !p.check(lexer.TokenString) {
			p.fail("unexpected token %q in validate block", p.current.Lexeme)
			break
		}
		key := p.current.Lexeme
		p.advance()
		switch key {
		case "pattern":
			p.consume(lexer.TokenString, "expected string after 'pattern'")
			field.Pattern = p.previous.Lexeme
		case "range":
			if !p.check(lexer.TokenRange) {
				p.fail("expected range after 'range'")
				break
			}
			lo, hi := splitRangeFloat(p.current.Lexeme)
			p.advance()
			field.Numeric = ast.NumericRange{Min: lo, Max: hi, Set: true}
		default:
			p.fail("unknown validate property %q", key)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after validate block")
}

func splitRange(lexeme string) (int, int) {
	for i := 0; i+1 < len(lexeme); i++ {
		if lexeme[i] == '.' && lexeme[i+1] == '.' {
			return atoiSafe(lexeme[:i]), atoiSafe(lexeme[i+2:])
		}
	}
	return 0, 0
}

func splitRangeFloat(lexeme string) (float64, float64) {
	lo, hi := splitRange(lexeme)
	return float64(lo), float64(hi)
}

// stripQuotes removes the surrounding double quotes a raw-string token
// preserves; other lexemes pass through untouched.
func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func atoiSafe(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// parsePipeline parses an ordered sequence of pipeline steps shared by page
// pipelines, reference-data blocks, and API pipelines.
func (p *Parser) parsePipeline() []*ast.PipelineStep {
	var steps []*ast.PipelineStep
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		pos := p.pos()
		switch p.current.Type {
		case lexer.TokenJQ:
			p.advance()
			if !p.check(lexer.TokenRawBlock) && !p.check(lexer.TokenString) {
				p.fail("expected jq block")
				break
			}
			steps = append(steps, &ast.PipelineStep{Type: ast.StepTransform, Code: p.current.Lexeme, Pos: pos})
			p.advance()
		case lexer.TokenLua:
			p.advance()
			if !p.check(lexer.TokenRawBlock) && !p.check(lexer.TokenString) {
				p.fail("expected lua block")
				break
			}
			steps = append(steps, &ast.PipelineStep{Type: ast.StepScript, Code: p.current.Lexeme, Pos: pos})
			p.advance()
		case lexer.TokenDynamic:
			p.advance()
			p.consume(lexer.TokenSQL, "expected 'sql' after 'dynamic'")
			steps = append(steps, &ast.PipelineStep{Type: ast.StepDynamicSQL, Pos: pos})
		case lexer.TokenSQL:
			p.advance()
			if !p.check(lexer.TokenRawBlock) && !p.check(lexer.TokenRawString) && !p.check(lexer.TokenString) {
				p.fail("expected sql block or string")
				break
			}
			steps = append(steps, &ast.PipelineStep{Type: ast.StepStaticSQL, Code: stripQuotes(p.current.Lexeme), Pos: pos})
			p.advance()
		case lexer.TokenRawString:
			// The lexer folds `sql "..."` into this single token.
			steps = append(steps, &ast.PipelineStep{Type: ast.StepStaticSQL, Code: stripQuotes(p.current.Lexeme), Pos: pos})
			p.advance()
		case lexer.TokenExecuteQuery:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'executeQuery'")
			steps = append(steps, &ast.PipelineStep{Type: ast.StepStaticSQL, Name: p.previous.Lexeme, Pos: pos})
		case lexer.TokenExecuteTransform:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'executeTransform'")
			steps = append(steps, &ast.PipelineStep{Type: ast.StepTransform, Name: p.previous.Lexeme, Pos: pos})
		case lexer.TokenExecuteScript:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'executeScript'")
			steps = append(steps, &ast.PipelineStep{Type: ast.StepScript, Name: p.previous.Lexeme, Pos: pos})
		default:
			p.fail("unexpected token %q in pipeline block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after pipeline block")
	return steps
}

func (p *Parser) parseStyles() []*ast.StyleBlock {
	var blocks []*ast.StyleBlock
	for !p.hadError {
		if p.check(lexer.TokenCloseBrace) {
			p.advance()
			break
		}
		if p.check(lexer.TokenEOF) {
			p.fail("unexpected end of file in styles block")
			break
		}
		if p.check(lexer.TokenCSS) || p.check(lexer.TokenRawBlock) {
			block := &ast.StyleBlock{}
			if p.check(lexer.TokenCSS) {
				p.advance()
				p.consume(lexer.TokenOpenBrace, "expected '{' after 'css'")
			}
			block.Props = []*ast.StyleProp{{RawCSS: p.current.Lexeme}}
			p.advance()
			blocks = append(blocks, block)
			continue
		}
		if p.check(lexer.TokenString) {
			blocks = append(blocks, p.parseStyleBlock())
			continue
		}
		p.fail("expected style selector or '}'")
		break
	}
	return blocks
}

func (p *Parser) parseStyleBlock() *ast.StyleBlock {
	block := &ast.StyleBlock{Selector: p.current.Lexeme}
	p.advance()
	p.consume(lexer.TokenOpenBrace, "expected '{' after style selector")

	if p.check(lexer.TokenCSS) || p.check(lexer.TokenRawBlock) {
		if p.check(lexer.TokenCSS) {
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'css'")
			p.consume(lexer.TokenCloseBrace, "expected '}' after CSS block")
		} else {
			block.Props = []*ast.StyleProp{{RawCSS: p.current.Lexeme}}
			p.advance()
		}
		p.consume(lexer.TokenCloseBrace, "expected '}' after style block")
		return block
	}

	block.Props = p.parseStyleProps()
	return block
}

func (p *Parser) parseStyleProps() []*ast.StyleProp {
	var props []*ast.StyleProp
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		if !p.check(lexer.TokenString) {
			break
		}
		prop := &ast.StyleProp{Property: p.current.Lexeme}
		p.advance()
		if !p.check(lexer.TokenString) {
			p.fail("expected string value after style property")
			break
		}
		prop.Value = p.current.Lexeme
		p.advance()
		props = append(props, prop)
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' at end of style block")
	return props
}

func (p *Parser) parseLayouts() []*ast.Layout {
	var layouts []*ast.Layout
	for p.check(lexer.TokenString) && !p.hadError {
		layouts = append(layouts, p.parseLayout())
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' at end of layouts block")
	return layouts
}

func (p *Parser) parseLayout() *ast.Layout {
	layout := &ast.Layout{}
	p.consume(lexer.TokenString, "expected string for layout identifier")
	layout.ID = p.previous.Lexeme
	p.consume(lexer.TokenOpenBrace, "expected '{' after layout identifier")

	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenHTML, lexer.TokenMustache:
			layout.BodyTemplate = p.parseTemplateBody()
		case lexer.TokenString:
			key := p.current.Lexeme
			p.advance()
			if key == "doctype" {
				p.consume(lexer.TokenString, "expected string after 'doctype'")
				layout.Doctype = p.previous.Lexeme
			} else {
				p.fail("unknown layout property %q", key)
			}
		default:
			p.fail("unexpected token in layout")
		}
	}

	p.consume(lexer.TokenCloseBrace, "expected '}' after layout block")
	return layout
}

func (p *Parser) parseAPI() *ast.ApiEndpoint {
	ep := &ast.ApiEndpoint{Method: "GET", Pos: p.pos()}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'api'")

	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenRoute:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'route'")
			ep.Route = p.previous.Lexeme
		case lexer.TokenMethod:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'method'")
			ep.Method = p.previous.Lexeme
		case lexer.TokenFields:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'fields'")
			ep.Fields = p.parseFields()
		case lexer.TokenPipeline:
			p.advance()
			p.consume(lexer.TokenOpenBrace, "expected '{' after 'pipeline'")
			ep.Pipeline = p.parsePipeline()
		default:
			p.fail("unexpected token %q in API block", p.current.Lexeme)
		}
	}

	p.consume(lexer.TokenCloseBrace, "expected '}' after API block")
	return ep
}

func (p *Parser) parseQuery() *ast.NamedQuery {
	q := &ast.NamedQuery{}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'query'")

	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenName:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'name'")
			q.Name = p.previous.Lexeme
		case lexer.TokenParams:
			p.advance()
			q.Params = p.parseQueryParams()
		case lexer.TokenSQL:
			p.advance()
			if !p.check(lexer.TokenRawBlock) && !p.check(lexer.TokenRawString) && !p.check(lexer.TokenString) {
				p.fail("expected SQL query")
				break
			}
			q.SQL = stripQuotes(p.current.Lexeme)
			p.advance()
		case lexer.TokenRawString:
			// The lexer folds `sql "..."` into this single token.
			q.SQL = stripQuotes(p.current.Lexeme)
			p.advance()
		default:
			p.fail("unexpected token %q in query block", p.current.Lexeme)
		}
	}

	p.consume(lexer.TokenCloseBrace, "expected '}' after query block")
	return q
}

func (p *Parser) parseQueryParams() []string {
	var params []string
	p.consume(lexer.TokenOpenBracket, "expected '[' after 'params'")
	for !p.check(lexer.TokenCloseBracket) && !p.check(lexer.TokenEOF) && !p.hadError {
		if !p.check(lexer.TokenString) {
			p.fail("expected parameter name")
			break
		}
		params = append(params, p.current.Lexeme)
		p.advance()
		if p.check(lexer.TokenComma) {
			p.advance()
		} else if !p.check(lexer.TokenCloseBracket) {
			p.fail("expected ',' or ']' after parameter name")
			break
		}
	}
	p.consume(lexer.TokenCloseBracket, "expected ']' after parameter list")
	return params
}

func (p *Parser) parseTransform() *ast.NamedTransform {
	t := &ast.NamedTransform{}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'transform'")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenName:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'name'")
			t.Name = p.previous.Lexeme
		case lexer.TokenJQ:
			p.advance()
			if !p.check(lexer.TokenRawBlock) && !p.check(lexer.TokenString) {
				p.fail("expected jq block")
				break
			}
			t.Code = p.current.Lexeme
			p.advance()
		default:
			p.fail("unexpected token %q in transform block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after transform block")
	return t
}

func (p *Parser) parseScript() *ast.NamedScript {
	s := &ast.NamedScript{}
	p.consume(lexer.TokenOpenBrace, "expected '{' after 'script'")
	for !p.check(lexer.TokenCloseBrace) && !p.check(lexer.TokenEOF) && !p.hadError {
		switch p.current.Type {
		case lexer.TokenName:
			p.advance()
			p.consume(lexer.TokenString, "expected string after 'name'")
			s.Name = p.previous.Lexeme
		case lexer.TokenLua:
			p.advance()
			if !p.check(lexer.TokenRawBlock) && !p.check(lexer.TokenString) {
				p.fail("expected lua block")
				break
			}
			s.Code = p.current.Lexeme
			p.advance()
		default:
			p.fail("unexpected token %q in script block", p.current.Lexeme)
		}
	}
	p.consume(lexer.TokenCloseBrace, "expected '}' after script block")
	return s
}
