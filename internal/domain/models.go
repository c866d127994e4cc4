// Package domain holds the core data types of the warehouse pipeline.
// This layer is pure: no infrastructure dependencies.
package domain

// RawObservation is one ingested (series, date, value) record. Several raw
// observations may exist for the same (SeriesID, Date) across ingestion runs;
// the one with the greatest IngestedAt is authoritative.
type RawObservation struct {
	SeriesID      string  `json:"series_id"`
	Date          string  `json:"observation_date"` // YYYY-MM-DD
	Value         float64 `json:"value"`
	RealtimeStart string  `json:"realtime_start"` // source-provided validity window
	RealtimeEnd   string  `json:"realtime_end"`
	IngestedAt    int64   `json:"ingested_at"` // unix seconds
}

// AnalyticsRow is one fully derived row of the analytics table. Derived
// columns are nil where the series has too little history or where the
// calculation would divide by zero.
type AnalyticsRow struct {
	SeriesID     string   `json:"series_id"`
	Date         string   `json:"observation_date"`
	Value        float64  `json:"value"`
	MomChange    *float64 `json:"mom_change"`
	MomPctChange *float64 `json:"mom_pct_change"`
	YoyChange    *float64 `json:"yoy_change"`
	YoyPctChange *float64 `json:"yoy_pct_change"`
	MA3          *float64 `json:"ma_3"`
	MA12         *float64 `json:"ma_12"`
	ZScore60     *float64 `json:"z_score_60"`
}
