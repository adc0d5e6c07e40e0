package stock_health

import (
	"math"
	"strconv"
)

// roundFloat rounds v to the given number of decimal places.
func roundFloat(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}

	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

// formatFloat renders v rounded to decimals without trailing zeros.
func formatFloat(v float64, decimals int) string {
	return strconv.FormatFloat(roundFloat(v, decimals), 'f', -1, 64)
}

// formatOptionalFloat renders nil as an empty cell.
func formatOptionalFloat(v *float64, decimals int) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v, decimals)
}
