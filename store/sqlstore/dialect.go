package sqlstore

import (
	"strconv"
	"strings"
)

// Violation is an engine-neutral classification of a rejected write.
type Violation int

const (
	NoViolation Violation = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
	NotNullViolation
)

func (v Violation) String() string {
	switch v {
	case UniqueViolation:
		return "unique"
	case ForeignKeyViolation:
		return "foreign key"
	case CheckViolation:
		return "check"
	case NotNullViolation:
		return "not null"
	}
	return "none"
}

// Dialect captures what differs between relational engines.
type Dialect interface {
	Name() string

	// Namespace returns statements that create the storage namespace.
	// Engines whose namespace is the database itself return nil.
	Namespace() []string

	// DDL returns the semicolon-separated schema script.
	DDL() string

	// Rebind rewrites "?" placeholders into the engine's style.
	Rebind(query string) string

	// Classify maps an engine error to a Violation.
	Classify(err error) Violation
}

// RebindDollar rewrites "?" placeholders as $1, $2, ... for PostgreSQL.
// Queries in this package never contain a literal '?'.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
