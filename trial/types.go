/*
types.go - Core domain types for clinical trial cell-count data

PURPOSE:
  Defines the entities persisted by the loader and the parsed input Row
  they are derived from. Every other package speaks in these types.

ENTITIES:
  Project:          natural key only
  DiseaseCondition: natural key only
  Treatment:        natural key only, optional on a Subject
  Subject:          keyed by (project, subject), last-write-wins on load
  Sample:           insert-once, belongs to exactly one Subject
  CellCount:        one-to-one with Sample, five non-negative counts

OPTIONAL VALUES:
  Subject.TreatmentID and Sample.Response use the empty string for "absent"
  and are written as NULL by the stores. TimeFromTreatmentStart is a pointer
  because zero is a meaningful value (day of treatment start).

SEE ALSO:
  - row.go: Parsed input rows and the "none" treatment rule
  - store.go: Persistence interfaces
  - loader.go: Writes these entities
*/
package trial

// =============================================================================
// ENUMS
// =============================================================================

// Sex is the binary sex recorded for a subject.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

// Valid reports whether s is one of the stored enum values.
func (s Sex) Valid() bool {
	return s == SexMale || s == SexFemale
}

// Response is a sample's treatment response. Empty means not recorded.
type Response string

const (
	ResponseNone Response = ""
	ResponseYes  Response = "y"
	ResponseNo   Response = "n"
)

// Valid reports whether r is absent or one of the stored enum values.
func (r Response) Valid() bool {
	return r == ResponseNone || r == ResponseYes || r == ResponseNo
}

// =============================================================================
// ENTITIES
// =============================================================================

// SubjectKey is the composite natural key of a Subject.
type SubjectKey struct {
	ProjectID string
	SubjectID string
}

func (k SubjectKey) String() string {
	return k.ProjectID + "/" + k.SubjectID
}

// Subject is a trial participant within one project.
type Subject struct {
	ProjectID     string
	SubjectID     string
	ConditionName string
	TreatmentID   string // empty when the subject received no treatment
	Age           int
	Sex           Sex
}

// Key returns the subject's composite key.
func (s Subject) Key() SubjectKey {
	return SubjectKey{ProjectID: s.ProjectID, SubjectID: s.SubjectID}
}

// Sample is a single specimen taken from a subject.
type Sample struct {
	SampleID               string
	ProjectID              string
	SubjectID              string
	SampleType             string
	TimeFromTreatmentStart *int
	Response               Response
}

// SubjectKey returns the key of the subject the sample belongs to.
func (s Sample) SubjectKey() SubjectKey {
	return SubjectKey{ProjectID: s.ProjectID, SubjectID: s.SubjectID}
}

// CellCount holds the immune-cell populations measured in one sample.
type CellCount struct {
	SampleID string
	BCell    int64
	CD8TCell int64
	CD4TCell int64
	NKCell   int64
	Monocyte int64
}

// Total returns the sum of all populations.
func (c CellCount) Total() int64 {
	return c.BCell + c.CD8TCell + c.CD4TCell + c.NKCell + c.Monocyte
}

// Counts reports the number of rows in each relation.
type Counts struct {
	Projects   int64 `json:"projects"`
	Conditions int64 `json:"conditions"`
	Treatments int64 `json:"treatments"`
	Subjects   int64 `json:"subjects"`
	Samples    int64 `json:"samples"`
	CellCounts int64 `json:"cell_counts"`
}

// Relation names, shared by stores, errors and metrics.
const (
	RelationProject   = "project"
	RelationCondition = "disease_condition"
	RelationTreatment = "treatment"
	RelationSubject   = "subject"
	RelationSample    = "sample"
	RelationCellCount = "cell_count"
)

// Relations lists every relation in foreign-key dependency order.
var Relations = []string{
	RelationProject,
	RelationCondition,
	RelationTreatment,
	RelationSubject,
	RelationSample,
	RelationCellCount,
}

// ByRelation returns the count for a relation name, or 0 if unknown.
func (c Counts) ByRelation(relation string) int64 {
	switch relation {
	case RelationProject:
		return c.Projects
	case RelationCondition:
		return c.Conditions
	case RelationTreatment:
		return c.Treatments
	case RelationSubject:
		return c.Subjects
	case RelationSample:
		return c.Samples
	case RelationCellCount:
		return c.CellCounts
	}
	return 0
}
