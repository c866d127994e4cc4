// Package catalog holds the static registry of tracked labor-market series.
// Entries are created at deploy time and never mutated at runtime.
package catalog

// Frequency is the sampling frequency of a series.
type Frequency string

const (
	Monthly Frequency = "monthly"
	Weekly  Frequency = "weekly"
)

// Series describes one tracked series in the source API.
type Series struct {
	ID        string    `json:"series_id"`
	Name      string    `json:"name"`
	Frequency Frequency `json:"frequency"`
	Unit      string    `json:"unit"`
	Category  string    `json:"category"`
}

// tracked is the full registry, in display order.
var tracked = []Series{
	{ID: "PAYEMS", Name: "Total Nonfarm Payrolls", Frequency: Monthly, Unit: "Thousands of Persons", Category: "employment"},
	{ID: "UNRATE", Name: "Unemployment Rate", Frequency: Monthly, Unit: "Percent", Category: "unemployment"},
	{ID: "CIVPART", Name: "Labor Force Participation Rate", Frequency: Monthly, Unit: "Percent", Category: "employment"},
	{ID: "CES0500000003", Name: "Average Hourly Earnings (Private)", Frequency: Monthly, Unit: "Dollars per Hour", Category: "wages"},
	{ID: "JTSJOL", Name: "Job Openings (JOLTS)", Frequency: Monthly, Unit: "Thousands", Category: "job_openings"},
	{ID: "ICSA", Name: "Initial Jobless Claims", Frequency: Weekly, Unit: "Number", Category: "claims"},
	{ID: "U6RATE", Name: "U-6 Underemployment Rate", Frequency: Monthly, Unit: "Percent", Category: "unemployment"},
	{ID: "EMRATIO", Name: "Employment-Population Ratio", Frequency: Monthly, Unit: "Percent", Category: "employment"},
}

// All returns the full series registry.
func All() []Series {
	out := make([]Series, len(tracked))
	copy(out, tracked)
	return out
}

// ByID returns the series with the given id, or nil if it is not tracked.
func ByID(id string) *Series {
	for i := range tracked {
		if tracked[i].ID == id {
			s := tracked[i]
			return &s
		}
	}
	return nil
}

// Filter returns the registry entries whose ids appear in the given list.
// Unknown ids are ignored. A nil or empty list returns the full registry.
func Filter(ids []string) []Series {
	if len(ids) == 0 {
		return All()
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var out []Series
	for _, s := range tracked {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
