package clean

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"diabclean/internal/encounters"
)

// NA is how a missing value is reported in errors and profiles.
const NA = "NA"

func column(df dataframe.DataFrame, name string) ([]any, error) {
	if !encounters.HasColumn(df.Names(), name) {
		return nil, missingColumn(name)
	}
	return encounters.Values(df.Col(name)), nil
}

// keepRows subsets df to the rows marked true.
func keepRows(df dataframe.DataFrame, keep []bool) (dataframe.DataFrame, error) {
	idx := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	if len(idx) == df.Nrow() {
		return df, nil
	}
	out := df.Subset(idx)
	if err := out.Error(); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("subset rows: %w", err)
	}
	return out, nil
}

// text renders a cell as the string a user would see in the CSV. NA reports
// false.
func text(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return fmt.Sprint(v), true
}

// code reads an integer ID cell. Integral floats and numeric strings are
// accepted.
func code(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// cellKey is unambiguous across cells of one column: NA never collides with
// a quoted string.
func cellKey(v any) string {
	if v == nil {
		return NA
	}
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	s, _ := text(v)
	return s
}

// rowKeys builds one equality key per row over all columns. NA equals NA.
func rowKeys(df dataframe.DataFrame) []string {
	cols := make([][]any, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, encounters.Values(df.Col(name)))
	}

	keys := make([]string, df.Nrow())
	var b strings.Builder
	for i := range keys {
		b.Reset()
		for j, col := range cols {
			if j > 0 {
				b.WriteByte('\x1f')
			}
			b.WriteString(cellKey(col[i]))
		}
		keys[i] = b.String()
	}
	return keys
}

func stringSeries(name string, vals []any) series.Series {
	return series.New(vals, series.String, name)
}

func intSeries(name string, vals []int) series.Series {
	return series.New(vals, series.Int, name)
}
