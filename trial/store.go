/*
store.go - Persistence interfaces for the normalized trial schema

PURPOSE:
  Defines the boundary between load logic and the relational engine. The
  store handle is passed explicitly to the Schema Manager, Loader and
  Verifier; there is no package-level connection.

KEY INTERFACES:
  SchemaManager: Idempotent namespace + relation creation
  Writer:        The write operations of one load, always inside a transaction
  TxStore:       Runs a function against a Writer atomically
  Counter:       Per-relation row counts (Verifier)
  Reader:        Point lookups for the HTTP surface and tests
  Store:         Everything above

WRITE SEMANTICS:
  UpsertProject / UpsertCondition / UpsertTreatment: insert-if-absent
  UpsertSubject:   insert, or overwrite attributes of an existing key
  InsertSample:    insert-once, DuplicateKeyError on collision
  InsertCellCount: insert-once, DuplicateKeyError on collision
  Missing parents and failed checks return ConstraintError.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via mattn/go-sqlite3
  - store/postgres: PostgreSQL via pgx
  - trial/store: In-memory for testing

SEE ALSO:
  - loader.go: Uses Writer through TxStore
  - verify.go: Uses Counter
*/
package trial

import "context"

// SchemaManager creates the storage namespace and relations if missing.
type SchemaManager interface {
	// EnsureSchema must not fail or touch data when relations already exist.
	// An incompatible pre-existing relation returns a ConfigurationError.
	EnsureSchema(ctx context.Context) error
}

// Writer is the set of writes performed by a load.
type Writer interface {
	UpsertProject(ctx context.Context, projectID string) error
	UpsertCondition(ctx context.Context, conditionName string) error
	UpsertTreatment(ctx context.Context, treatmentID string) error
	UpsertSubject(ctx context.Context, subject Subject) error
	InsertSample(ctx context.Context, sample Sample) error
	InsertCellCount(ctx context.Context, count CellCount) error
}

// TxStore runs writes atomically.
type TxStore interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Writer) error) error
}

// Counter reports row counts per relation.
type Counter interface {
	Counts(ctx context.Context) (Counts, error)
}

// Reader looks up single rows. Absent rows return an error wrapping ErrNotFound.
type Reader interface {
	Counter
	GetSubject(ctx context.Context, key SubjectKey) (*Subject, error)
	GetSample(ctx context.Context, sampleID string) (*Sample, error)
	GetCellCount(ctx context.Context, sampleID string) (*CellCount, error)
}

// Store is the full persistence surface.
type Store interface {
	SchemaManager
	TxStore
	Reader
	Close() error
}
