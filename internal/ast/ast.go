// Package ast defines the intermediate tree produced by the parser: an
// immutable, declaration-order graph rooted at Site. Linked lists in the
// source become ordered slices here; iteration order is preserved exactly
// as required by the grammar (pipelines execute in source order, route
// maps retain last-registration-wins semantics at lookup time rather than
// at insertion time).
package ast

import (
	"fmt"

	"github.com/williamcotton/webdsl/internal/value"
)

// Value is the tagged literal (string/number/env-ref) used for fields
// that may be resolved at runtime rather than parse time.
type Value = value.Value

// Position identifies a source location for diagnostics.
type Position struct {
	Filename string
	Line     int
	Column   int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// IsValid reports whether the position was ever set.
func (p Position) IsValid() bool { return p.Line > 0 }

// TemplateKind discriminates a Template's rendering engine.
type TemplateKind int

const (
	TemplateMustache TemplateKind = iota
	TemplateHTML
	TemplateRaw
)

func (k TemplateKind) String() string {
	switch k {
	case TemplateMustache:
		return "mustache"
	case TemplateHTML:
		return "html"
	case TemplateRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Template holds a content string and the engine that should render it.
type Template struct {
	Kind    TemplateKind
	Content string
}

// ResponseBlock is either a redirect or a template, mutually exclusive by
// convention: Redirect is used when non-empty, otherwise Template is
// rendered.
type ResponseBlock struct {
	Redirect string
	Template *Template
}

// StepType discriminates a PipelineStep's executor.
type StepType int

const (
	StepTransform StepType = iota
	StepScript
	StepStaticSQL
	StepDynamicSQL
)

func (t StepType) String() string {
	switch t {
	case StepTransform:
		return "transform"
	case StepScript:
		return "script"
	case StepStaticSQL:
		return "static-sql"
	case StepDynamicSQL:
		return "dynamic-sql"
	default:
		return "unknown"
	}
}

// PipelineStep is a single stage: either inline Code or a reference to a
// NamedTransform/NamedScript/NamedQuery by Name. Steps execute in the
// order they appear in the owning Pipeline slice.
type PipelineStep struct {
	Type StepType
	Code string
	Name string
	Pos  Position
}

// FieldType is the declared scalar type of an ApiField.
type FieldType int

const (
	FieldString FieldType = iota
	FieldNumber
)

// LengthRange is an inclusive [Min, Max] bound used by a field's `length`
// constraint.
type LengthRange struct {
	Min, Max int
	Set      bool
}

// NumericRange is an inclusive [Min, Max] bound for a number field.
type NumericRange struct {
	Min, Max float64
	Set      bool
}

// ApiField declares one validated input field, shared by Page forms and
// ApiEndpoint JSON bodies.
type ApiField struct {
	Name     string
	Type     FieldType
	Format   string // "", "email", "url", "date", "time", "phone", "uuid", "ipv4"
	Required bool
	Length   LengthRange
	Numeric  NumericRange
	Pattern  string // regex source from validate { pattern ... }
}

// Page is a route that renders a template.
type Page struct {
	ID            string
	Route         string
	Method        string
	Layout        string
	Title         string
	Description   string
	Fields        []*ApiField
	Pipeline      []*PipelineStep
	ReferenceData []*PipelineStep
	Template      *Template
	ErrorBlock    *ResponseBlock
	SuccessBlock  *ResponseBlock
	Redirect      string
	Pos           Position
}

// Layout wraps a page's template in a shared head/body shell.
type Layout struct {
	ID           string
	Doctype      string
	HeadTemplate *Template
	BodyTemplate *Template
}

// StyleProp is a single `property: value;` declaration inside a style
// block, or — when RawCSS is non-empty — an opaque verbatim CSS body
// (the distinct variant chosen for the `raw_css` design question instead
// of overloading the property/value shape).
type StyleProp struct {
	Property string
	Value    string
	RawCSS   string
}

// StyleBlock is one selector and its declarations, contributing to the
// aggregated /styles.css response.
type StyleBlock struct {
	Selector string
	Props    []*StyleProp
}

// ApiEndpoint is a route that returns JSON.
type ApiEndpoint struct {
	Route    string
	Method   string
	Fields   []*ApiField
	Pipeline []*PipelineStep
	Pos      Position
}

// NamedQuery is a top-level `query name { sql ... params [...] }`
// declaration invocable by name from a static-sql step.
type NamedQuery struct {
	Name   string
	SQL    string
	Params []string
}

// NamedTransform is a top-level `transform name { jq ... }` declaration.
type NamedTransform struct {
	Name string
	Code string
}

// NamedScript is a top-level `script name { lua ... }` declaration.
type NamedScript struct {
	Name string
	Code string
}

// Partial is a reusable named template fragment.
type Partial struct {
	Name     string
	Template *Template
}

// GithubAuth holds OAuth client credentials, each independently resolvable
// from a literal or an environment reference.
type GithubAuth struct {
	ClientID     Value
	ClientSecret Value
}

// Auth is the site's session/OAuth configuration.
type Auth struct {
	Salt   Value
	Github *GithubAuth
}

// EmailTemplate is a named, subject-bearing template used by outbound
// mail.
type EmailTemplate struct {
	Name     string
	Subject  string
	Template *Template
}

// SendGrid holds SendGrid REST API credentials.
type SendGrid struct {
	APIKey    Value
	FromEmail Value
	FromName  Value
}

// Email is the site's outbound-mail configuration.
type Email struct {
	SendGrid  *SendGrid
	Templates []*EmailTemplate
}

// Site is the root of the parsed configuration; a running server serves
// exactly one Site.
type Site struct {
	Name        string
	Author      string
	Version     string
	BaseURL     string
	DatabaseURL Value
	Port        Value
	Auth        *Auth
	Email       *Email

	Pages      []*Page
	Styles     []*StyleBlock
	Layouts    []*Layout
	APIs       []*ApiEndpoint
	Queries    []*NamedQuery
	Transforms []*NamedTransform
	Scripts    []*NamedScript
	Partials   []*Partial
}
