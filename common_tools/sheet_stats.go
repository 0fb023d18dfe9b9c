package common_tools

import (
	"fmt"
	"math"
	"sort"
)

// NumericStats summarizes a numeric column.
type NumericStats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stdev  float64 `json:"stdev"`
}

// ValueCount is one entry of a categorical top-values list.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CategoricalStats summarizes a non-numeric column.
type CategoricalStats struct {
	Type        string       `json:"type"`
	UniqueCount int          `json:"unique_count"`
	TotalCount  int          `json:"total_count"`
	TopValues   []ValueCount `json:"top_values"`
}

// columnValues returns the non-null values of a column across rows.
func columnValues(rows []map[string]interface{}, columnID string) []interface{} {
	var values []interface{}
	for _, row := range rows {
		if v, ok := row[columnID]; ok && v != nil {
			values = append(values, v)
		}
	}
	return values
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func allNumeric(values []interface{}) bool {
	for _, v := range values {
		if _, ok := asNumber(v); !ok {
			return false
		}
	}
	return true
}

// numericStats uses the sample standard deviation; a single value has a
// stdev of zero.
func numericStats(values []interface{}) (NumericStats, error) {
	var nums []float64
	for _, v := range values {
		if n, ok := asNumber(v); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return NumericStats{}, fmt.Errorf("no numeric values found")
	}

	sort.Float64s(nums)
	st := NumericStats{Count: len(nums), Min: nums[0], Max: nums[len(nums)-1]}
	for _, n := range nums {
		st.Sum += n
	}
	st.Mean = st.Sum / float64(len(nums))

	mid := len(nums) / 2
	if len(nums)%2 == 0 {
		st.Median = (nums[mid-1] + nums[mid]) / 2
	} else {
		st.Median = nums[mid]
	}

	if len(nums) > 1 {
		var sq float64
		for _, n := range nums {
			sq += (n - st.Mean) * (n - st.Mean)
		}
		st.Stdev = math.Sqrt(sq / float64(len(nums)-1))
	}
	return st, nil
}

// categoricalStats counts distinct values. Ties in the top five keep first
// appearance order.
func categoricalStats(values []interface{}) CategoricalStats {
	counts := map[string]int{}
	var order []string
	for _, v := range values {
		key := fmt.Sprint(v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	top := make([]ValueCount, 0, len(order))
	for _, key := range order {
		top = append(top, ValueCount{Value: key, Count: counts[key]})
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > 5 {
		top = top[:5]
	}

	return CategoricalStats{
		Type:        "categorical",
		UniqueCount: len(counts),
		TotalCount:  len(values),
		TopValues:   top,
	}
}

// columnStatistics computes per-column statistics keyed by column name.
func columnStatistics(columns []SheetColumn, rows []map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		values := columnValues(rows, col.ID)
		if col.Type == "number" || allNumeric(values) {
			st, err := numericStats(values)
			if err != nil {
				out[col.Name] = map[string]string{"error": err.Error()}
				continue
			}
			out[col.Name] = st
			continue
		}
		out[col.Name] = categoricalStats(values)
	}
	return out
}
