package models

// OutlierSet is one page of 3-sigma outliers for a numeric column.
type OutlierSet struct {
	ColumnName        string       `json:"column_name"`
	TotalValues       int64        `json:"total_values"`
	OutlierCount      int64        `json:"outlier_count"`
	OutlierPercentage float64      `json:"outlier_percentage"`
	Mean              float64      `json:"mean"`
	StdDev            float64      `json:"stddev"`
	LowerBound        float64      `json:"lower_bound"`
	UpperBound        float64      `json:"upper_bound"`
	Items             []OutlierRow `json:"items"`
	Page              int          `json:"page"`
	PageSize          int          `json:"page_size"`
	TotalPages        int          `json:"total_pages"`
}

// OutlierRow is a flagged value together with the full row it came from.
type OutlierRow struct {
	Value    float64 `json:"value"`
	Distance float64 `json:"distance"` // |value - mean|
	Row      []Field `json:"row"`
}

// TotalPages returns ceil(count / pageSize). A non-positive page size yields 0.
func TotalPages(count int64, pageSize int) int {
	if pageSize <= 0 || count <= 0 {
		return 0
	}
	size := int64(pageSize)
	return int((count + size - 1) / size)
}
