package trial

// NoTreatment is the literal the input uses for a subject without treatment.
const NoTreatment = "none"

// Row is one parsed input record (one sample visit).
//
// String fields hold the trimmed input values. Treatment is kept verbatim,
// including the NoTreatment sentinel; use TreatmentID to interpret it.
type Row struct {
	Index int // 1-based data row index (header excluded)

	Project   string
	Subject   string
	Condition string
	Age       int
	Sex       string
	Treatment string

	Sample                 string
	SampleType             string
	TimeFromTreatmentStart *int
	Response               string

	BCell    int64
	CD8TCell int64
	CD4TCell int64
	NKCell   int64
	Monocyte int64
}

// TreatmentID returns the treatment identifier and whether one is present.
// The NoTreatment sentinel and the empty string both mean absent.
func (r Row) TreatmentID() (string, bool) {
	if r.Treatment == "" || r.Treatment == NoTreatment {
		return "", false
	}
	return r.Treatment, true
}

// SubjectKey returns the composite subject key of the row.
func (r Row) SubjectKey() SubjectKey {
	return SubjectKey{ProjectID: r.Project, SubjectID: r.Subject}
}

// SubjectRecord builds the Subject implied by the row.
func (r Row) SubjectRecord() Subject {
	treatment, _ := r.TreatmentID()
	return Subject{
		ProjectID:     r.Project,
		SubjectID:     r.Subject,
		ConditionName: r.Condition,
		TreatmentID:   treatment,
		Age:           r.Age,
		Sex:           Sex(r.Sex),
	}
}

// SampleRecord builds the Sample implied by the row.
func (r Row) SampleRecord() Sample {
	return Sample{
		SampleID:               r.Sample,
		ProjectID:              r.Project,
		SubjectID:              r.Subject,
		SampleType:             r.SampleType,
		TimeFromTreatmentStart: r.TimeFromTreatmentStart,
		Response:               Response(r.Response),
	}
}

// CellCountRecord builds the CellCount implied by the row.
func (r Row) CellCountRecord() CellCount {
	return CellCount{
		SampleID: r.Sample,
		BCell:    r.BCell,
		CD8TCell: r.CD8TCell,
		CD4TCell: r.CD4TCell,
		NKCell:   r.NKCell,
		Monocyte: r.Monocyte,
	}
}
