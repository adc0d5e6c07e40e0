package postgres

import (
	"fmt"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

// BuildStockHealthFilterClause constructs the " AND ..." clause and its
// arguments for a stock health filter. Placeholders are numbered from
// startIndex; the returned index is the next free one.
func BuildStockHealthFilterClause(filter *domain.StockHealthFilter, alias string, startIndex int) (string, []interface{}, int) {
	idx := startIndex
	if filter == nil {
		return "", nil, idx
	}

	var (
		clauses []string
		args    []interface{}
	)
	prefix := normalizeAlias(alias)

	if len(filter.HospitalIDs) > 0 {
		placeholders := make([]string, len(filter.HospitalIDs))
		for i, id := range filter.HospitalIDs {
			placeholders[i] = fmt.Sprintf("$%d", idx)
			args = append(args, id)
			idx++
		}
		clauses = append(clauses, fmt.Sprintf("%shospital_id IN (%s)", prefix, strings.Join(placeholders, ",")))
	}

	if name := strings.TrimSpace(filter.MedicineName); name != "" {
		clauses = append(clauses, fmt.Sprintf("%smedicine_name ILIKE $%d", prefix, idx))
		args = append(args, "%"+name+"%")
		idx++
	}

	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("%sstock_status = $%d", prefix, idx))
		args = append(args, string(filter.Status))
		idx++
	}

	if len(clauses) == 0 {
		return "", nil, idx
	}

	return " AND " + strings.Join(clauses, " AND "), args, idx
}

func normalizeAlias(alias string) string {
	if alias == "" {
		return ""
	}
	if !strings.HasSuffix(alias, ".") {
		return alias + "."
	}
	return alias
}
