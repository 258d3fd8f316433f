package clean

import (
	"sort"

	"github.com/go-gota/gota/dataframe"

	"diabclean/internal/encounters"
)

// ColumnProfile summarizes one column for the assess report.
type ColumnProfile struct {
	Name     string
	Type     string
	NA       int
	NARatio  float64
	Distinct int
	Top      string // most frequent non-NA value, ties broken by smallest
	TopCount int
}

// Assess profiles every column of df in table order.
func Assess(df dataframe.DataFrame) []ColumnProfile {
	n := df.Nrow()
	profiles := make([]ColumnProfile, 0, df.Ncol())
	for _, name := range df.Names() {
		s := df.Col(name)
		p := ColumnProfile{Name: name, Type: string(s.Type())}

		counts := make(map[string]int)
		for _, v := range encounters.Values(s) {
			str, ok := text(v)
			if !ok {
				p.NA++
				continue
			}
			counts[str]++
		}
		if n > 0 {
			p.NARatio = float64(p.NA) / float64(n)
		}
		p.Distinct = len(counts)
		for v, c := range counts {
			if c > p.TopCount || (c == p.TopCount && v < p.Top) {
				p.Top, p.TopCount = v, c
			}
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// CodeCount is one diagnosis code and its number of occurrences.
type CodeCount struct {
	Code  string
	Count int
}

// TopCodes counts codes across columns (the diagnosis columns when none are
// given), ignoring NA, and returns the n most frequent ordered by count then
// code. n <= 0 returns every code.
func TopCodes(df dataframe.DataFrame, n int, columns ...string) []CodeCount {
	if len(columns) == 0 {
		columns = encounters.DiagnosisColumns
	}

	counts := make(map[string]int)
	for _, col := range columns {
		vals, err := column(df, col)
		if err != nil {
			continue
		}
		for _, v := range vals {
			if s, ok := text(v); ok {
				counts[s]++
			}
		}
	}

	out := make([]CodeCount, 0, len(counts))
	for c, k := range counts {
		out = append(out, CodeCount{Code: c, Count: k})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
