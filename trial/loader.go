/*
loader.go - Transactional writer for normalized trial data

PURPOSE:
  Writes reference entities and per-sample facts in foreign-key order
  inside a single transaction. Either the whole input is visible after
  commit or none of it is.

WRITE ORDER:
  1. Projects, conditions, treatments (insert-if-absent, sorted order)
  2. Per row, in input order:
       Subject upsert (last-write-wins) -> Sample insert -> CellCount insert

  Repeated subject rows re-run the upsert; the later row's attributes win.
  Because each row upserts its subject before inserting its sample, a
  sample never references a subject that has not been written yet.

FAILURE:
  Any store error is wrapped in *LoadError with the row index and sample id,
  and returned from the transaction function so the store rolls back.

SEE ALSO:
  - normalize.go: Builds the ReferenceSets consumed here
  - store.go: Writer/TxStore contracts
*/
package trial

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/trialdb/logging"
)

// LoadReport summarizes a committed load.
type LoadReport struct {
	RunID      uuid.UUID
	Rows       int
	Projects   int
	Conditions int
	Treatments int
	Subjects   int
	Samples    int
	CellCounts int
	Duration   time.Duration
}

// Loader writes parsed rows to a TxStore.
type Loader struct {
	store TxStore
	log   *logging.Logger
	now   func() time.Time
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l *logging.Logger) LoaderOption {
	return func(ld *Loader) { ld.log = l }
}

// NewLoader creates a loader writing to store.
func NewLoader(store TxStore, opts ...LoaderOption) *Loader {
	ld := &Loader{
		store: store,
		log:   logging.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load writes sets and rows atomically. On error nothing is committed.
func (l *Loader) Load(ctx context.Context, rows []Row, sets ReferenceSets) (LoadReport, error) {
	start := l.now()
	report := LoadReport{
		RunID:      uuid.New(),
		Rows:       len(rows),
		Projects:   sets.Projects.Len(),
		Conditions: sets.Conditions.Len(),
		Treatments: sets.Treatments.Len(),
		Subjects:   sets.Subjects,
	}
	log := l.log.With("run_id", report.RunID.String())
	log.Info("load started", "rows", len(rows))

	var samples, cellCounts int
	err := l.store.WithTx(ctx, func(w Writer) error {
		if err := writeReferences(ctx, w, sets); err != nil {
			return &LoadError{Err: err}
		}
		log.Debug("reference entities written",
			"projects", report.Projects,
			"conditions", report.Conditions,
			"treatments", report.Treatments)

		for _, row := range rows {
			if err := writeRow(ctx, w, row); err != nil {
				return &LoadError{Row: row.Index, Sample: row.Sample, Err: err}
			}
			samples++
			cellCounts++
		}
		return nil
	})
	if err != nil {
		log.Error("load rolled back", "error", err)
		return LoadReport{}, err
	}

	report.Samples = samples
	report.CellCounts = cellCounts
	report.Duration = l.now().Sub(start)
	log.Info("load committed",
		"subjects", report.Subjects,
		"samples", report.Samples,
		"duration", report.Duration)
	return report, nil
}

func writeReferences(ctx context.Context, w Writer, sets ReferenceSets) error {
	for _, p := range sets.Projects.Sorted() {
		if err := w.UpsertProject(ctx, p); err != nil {
			return err
		}
	}
	for _, c := range sets.Conditions.Sorted() {
		if err := w.UpsertCondition(ctx, c); err != nil {
			return err
		}
	}
	for _, t := range sets.Treatments.Sorted() {
		if err := w.UpsertTreatment(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(ctx context.Context, w Writer, row Row) error {
	if err := w.UpsertSubject(ctx, row.SubjectRecord()); err != nil {
		return err
	}
	if err := w.InsertSample(ctx, row.SampleRecord()); err != nil {
		return err
	}
	return w.InsertCellCount(ctx, row.CellCountRecord())
}
