package trial

import "github.com/shopspring/decimal"

// Population names in reporting order.
const (
	PopulationBCell    = "b_cell"
	PopulationCD8TCell = "cd8_t_cell"
	PopulationCD4TCell = "cd4_t_cell"
	PopulationNKCell   = "nk_cell"
	PopulationMonocyte = "monocyte"
)

var hundred = decimal.NewFromInt(100)

// PopulationFrequency is one population's share of a sample's total count.
type PopulationFrequency struct {
	SampleID   string          `json:"sample"`
	Population string          `json:"population"`
	Count      int64           `json:"count"`
	Total      int64           `json:"total_count"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Frequencies returns the relative frequency of each population in c,
// as a percentage rounded to two decimals. A zero total yields zero percentages.
func Frequencies(c CellCount) []PopulationFrequency {
	total := c.Total()
	pops := []struct {
		name  string
		count int64
	}{
		{PopulationBCell, c.BCell},
		{PopulationCD8TCell, c.CD8TCell},
		{PopulationCD4TCell, c.CD4TCell},
		{PopulationNKCell, c.NKCell},
		{PopulationMonocyte, c.Monocyte},
	}

	out := make([]PopulationFrequency, 0, len(pops))
	for _, p := range pops {
		pct := decimal.Zero
		if total > 0 {
			pct = decimal.NewFromInt(p.count).Mul(hundred).
				DivRound(decimal.NewFromInt(total), 2)
		}
		out = append(out, PopulationFrequency{
			SampleID:   c.SampleID,
			Population: p.name,
			Count:      p.count,
			Total:      total,
			Percentage: pct,
		})
	}
	return out
}
