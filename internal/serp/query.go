package serp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/FranksOps/profilematch/internal/record"
)

const (
	DefaultDomain    = "linkedin.com"
	DefaultNameField = "Name"
)

var (
	DefaultContextFields = []string{"Location"}
	DefaultTerms         = []string{"google", "designer"}
)

// QueryBuilder turns a person into a site-restricted search string.
type QueryBuilder struct {
	Domain        string
	NameField     string
	ContextFields []string
	Terms         []string
}

// NewQueryBuilder returns the builder used for list exports: Name, the city
// part of Location and the default auxiliary terms.
func NewQueryBuilder() QueryBuilder {
	return QueryBuilder{
		Domain:        DefaultDomain,
		NameField:     DefaultNameField,
		ContextFields: slices.Clone(DefaultContextFields),
		Terms:         slices.Clone(DefaultTerms),
	}
}

func (b QueryBuilder) domain() string {
	if b.Domain == "" {
		return DefaultDomain
	}
	return b.Domain
}

func (b QueryBuilder) nameField() string {
	if b.NameField == "" {
		return DefaultNameField
	}
	return b.NameField
}

// Build returns "site:<domain>/in/ <name> <context...> <terms...>". Only the
// text before the first comma of each context field is used, so
// "Portland, OR" contributes "Portland". Empty parts are dropped.
func (b QueryBuilder) Build(p record.Person) string {
	parts := []string{"site:" + b.domain() + "/in/"}
	parts = append(parts, strings.TrimSpace(p.Value(b.nameField())))
	for _, f := range b.ContextFields {
		first, _, _ := strings.Cut(p.Value(f), ",")
		parts = append(parts, strings.TrimSpace(first))
	}
	for _, t := range b.Terms {
		parts = append(parts, strings.TrimSpace(t))
	}

	parts = slices.DeleteFunc(parts, func(s string) bool { return s == "" })
	return strings.Join(parts, " ")
}

// Validate checks that every field the builder reads is in the input header.
func (b QueryBuilder) Validate(header []string) error {
	fields := append([]string{b.nameField()}, b.ContextFields...)
	for _, f := range fields {
		if !slices.Contains(header, f) {
			return fmt.Errorf("input has no %q column (columns: %s)", f, strings.Join(header, ", "))
		}
	}
	return nil
}
