/*
dto.go - JSON shapes for the read-only trial API

PURPOSE:
  Keeps the wire format separate from the trial domain types, which carry
  no JSON tags of their own (except Counts and PopulationFrequency, which
  are already report-shaped).

NAMING CONVENTION:
  - *DTO: Response types returned to clients

TYPES:
  SummaryDTO, SubjectDTO, SampleDTO, CellCountDTO, FrequenciesDTO, ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/trialdb/trial"
)

// SummaryDTO reports row counts per relation.
type SummaryDTO struct {
	trial.Counts
}

// SubjectDTO represents a subject in API responses.
type SubjectDTO struct {
	ProjectID     string  `json:"project"`
	SubjectID     string  `json:"subject"`
	ConditionName string  `json:"condition"`
	TreatmentID   *string `json:"treatment"`
	Age           int     `json:"age"`
	Sex           string  `json:"sex"`
}

// SampleDTO represents a sample and, when present, its cell counts.
type SampleDTO struct {
	SampleID               string        `json:"sample"`
	ProjectID              string        `json:"project"`
	SubjectID              string        `json:"subject"`
	SampleType             string        `json:"sample_type"`
	TimeFromTreatmentStart *int          `json:"time_from_treatment_start"`
	Response               *string       `json:"response"`
	CellCount              *CellCountDTO `json:"cell_count,omitempty"`
}

// CellCountDTO carries the five populations and their total.
type CellCountDTO struct {
	BCell    int64 `json:"b_cell"`
	CD8TCell int64 `json:"cd8_t_cell"`
	CD4TCell int64 `json:"cd4_t_cell"`
	NKCell   int64 `json:"nk_cell"`
	Monocyte int64 `json:"monocyte"`
	Total    int64 `json:"total_count"`
}

// FrequenciesDTO is the per-population breakdown of one sample.
type FrequenciesDTO struct {
	SampleID    string                      `json:"sample"`
	TotalCount  int64                       `json:"total_count"`
	Populations []trial.PopulationFrequency `json:"populations"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSubjectDTO(s *trial.Subject) SubjectDTO {
	return SubjectDTO{
		ProjectID:     s.ProjectID,
		SubjectID:     s.SubjectID,
		ConditionName: s.ConditionName,
		TreatmentID:   optional(s.TreatmentID),
		Age:           s.Age,
		Sex:           string(s.Sex),
	}
}

func toSampleDTO(s *trial.Sample, c *trial.CellCount) SampleDTO {
	dto := SampleDTO{
		SampleID:               s.SampleID,
		ProjectID:              s.ProjectID,
		SubjectID:              s.SubjectID,
		SampleType:             s.SampleType,
		TimeFromTreatmentStart: s.TimeFromTreatmentStart,
		Response:               optional(string(s.Response)),
	}
	if c != nil {
		dto.CellCount = &CellCountDTO{
			BCell:    c.BCell,
			CD8TCell: c.CD8TCell,
			CD4TCell: c.CD4TCell,
			NKCell:   c.NKCell,
			Monocyte: c.Monocyte,
			Total:    c.Total(),
		}
	}
	return dto
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
