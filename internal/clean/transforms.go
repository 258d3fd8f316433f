// Package clean holds the table transforms applied to the encounter table
// and the named pipelines that chain them.
package clean

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/rs/zerolog"

	"diabclean/internal/encounters"
	"diabclean/internal/mapping"
)

// Transform maps a table to a new table. The input is never modified.
type Transform func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error)

// DefaultColumnMarkers are per-column values treated as missing after load
// by the patient-level variants.
var DefaultColumnMarkers = map[string][]string{
	encounters.Gender: {"Unknown/Invalid"},
}

// StandardizeMissing trims string cells and turns empty strings and the
// per-column markers into NA. Non-string columns pass through.
func StandardizeMissing(markers map[string][]string) Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		out := df
		total := 0
		for _, name := range df.Names() {
			s := df.Col(name)
			if s.Type() != series.String {
				continue
			}

			colMarkers := markers[name]
			vals := encounters.Values(s)
			changed := 0
			for i, v := range vals {
				str, ok := v.(string)
				if !ok {
					continue
				}
				trimmed := strings.TrimSpace(str)
				switch {
				case trimmed == "" || contains(colMarkers, trimmed):
					vals[i] = nil
					changed++
				case trimmed != str:
					vals[i] = trimmed
					changed++
				}
			}
			if changed == 0 {
				continue
			}

			out = out.Mutate(stringSeries(name, vals))
			if err := out.Error(); err != nil {
				return dataframe.DataFrame{}, fmt.Errorf("standardize %s: %w", name, err)
			}
			total += changed
		}
		log.Debug().Int("cells", total).Msg("standardized missing markers")
		return out, nil
	}
}

// DropSparseColumns drops each candidate column whose NA fraction is
// strictly greater than threshold. With no columns every column is a
// candidate. A zero-row table is returned unchanged.
func DropSparseColumns(threshold float64, columns []string) Transform {
	return dropSparse(threshold, columns, nil)
}

// DropSparseColumnsExcept considers every column except keep.
func DropSparseColumnsExcept(threshold float64, keep ...string) Transform {
	return dropSparse(threshold, nil, keep)
}

func dropSparse(threshold float64, columns, keep []string) Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		n := df.Nrow()
		if n == 0 {
			return df, nil
		}

		candidates := columns
		if len(candidates) == 0 {
			for _, name := range df.Names() {
				if !contains(keep, name) {
					candidates = append(candidates, name)
				}
			}
		}

		var drop []string
		present := 0
		for _, name := range candidates {
			if !encounters.HasColumn(df.Names(), name) {
				log.Warn().Str("column", name).Msg("sparse check: column not found")
				continue
			}
			present++

			missing := 0
			s := df.Col(name)
			for i := 0; i < n; i++ {
				if s.Elem(i).IsNA() {
					missing++
				}
			}
			ratio := float64(missing) / float64(n)
			log.Debug().Str("column", name).Float64("missing_ratio", ratio).Msg("missingness")
			if ratio > threshold {
				drop = append(drop, name)
			}
		}
		if present == 0 {
			return df, missingColumn(strings.Join(columns, ","))
		}
		if len(drop) == 0 {
			return df, nil
		}
		if len(drop) == df.Ncol() {
			return dataframe.DataFrame{}, fmt.Errorf("drop sparse columns: every column exceeds threshold %.2f", threshold)
		}

		out := df.Drop(drop)
		if err := out.Error(); err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("drop columns %v: %w", drop, err)
		}
		log.Info().Strs("columns", drop).Float64("threshold", threshold).Msg("dropped sparse columns")
		return out, nil
	}
}

// FilterDeceased removes encounters discharged with an Expired disposition,
// and Hospice dispositions too when hospice is set. NA dispositions are kept.
func FilterDeceased(sections *mapping.Sections, hospice bool) Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		vals, err := column(df, encounters.DischargeDispositionID)
		if err != nil {
			return df, err
		}
		if sections == nil || sections.Len(mapping.DischargeDisposition) == 0 {
			return df, fmt.Errorf("%w: %s", ErrMissingMapping, mapping.DischargeDisposition)
		}

		terms := []string{"expired"}
		if hospice {
			terms = append(terms, "hospice")
		}
		codes := sections.CodesMatching(mapping.DischargeDisposition, terms...)
		excluded := make(map[int]bool, len(codes))
		for _, c := range codes {
			excluded[c] = true
		}
		log.Debug().Ints("codes", codes).Msg("deceased disposition codes")

		keep := make([]bool, len(vals))
		for i, v := range vals {
			c, ok := code(v)
			keep[i] = !ok || !excluded[c]
		}
		return keepRows(df, keep)
	}
}

// DropDuplicateRows removes full-row duplicates, keeping first occurrences.
func DropDuplicateRows() Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		keys := rowKeys(df)
		seen := make(map[string]struct{}, len(keys))
		keep := make([]bool, len(keys))
		dups := 0
		for i, k := range keys {
			if _, ok := seen[k]; ok {
				dups++
				continue
			}
			seen[k] = struct{}{}
			keep[i] = true
		}
		log.Debug().Int("duplicates", dups).Msg("duplicate rows")
		return keepRows(df, keep)
	}
}

// DropDuplicatePatients keeps the first encounter per key value. Rows whose
// key is NA are all kept.
func DropDuplicatePatients(key string) Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		vals, err := column(df, key)
		if err != nil {
			return df, err
		}

		seen := make(map[string]struct{}, len(vals))
		keep := make([]bool, len(vals))
		for i, v := range vals {
			if v == nil {
				keep[i] = true
				continue
			}
			k := cellKey(v)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keep[i] = true
		}
		return keepRows(df, keep)
	}
}

// RestrictGender keeps rows whose gender is Female or Male.
func RestrictGender() Transform {
	return restrictTo(encounters.Gender, encounters.Genders)
}

// RestrictAge keeps rows whose age is one of the ten age bins.
func RestrictAge() Transform {
	return restrictTo(encounters.Age, encounters.AgeBins)
}

func restrictTo(col string, allowed []string) Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		vals, err := column(df, col)
		if err != nil {
			return df, err
		}
		keep := make([]bool, len(vals))
		for i, v := range vals {
			s, ok := text(v)
			keep[i] = ok && contains(allowed, s)
		}
		return keepRows(df, keep)
	}
}

// MapIDs adds a description column for each coded ID column. Unknown and NA
// codes map to NA. Families without a column or a mapping section are
// skipped with a warning.
func MapIDs(sections *mapping.Sections) Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		if sections == nil {
			return df, ErrMissingMapping
		}

		out := df
		mapped := 0
		for _, f := range mapping.Families {
			vals, err := column(df, string(f))
			if err != nil {
				log.Warn().Str("column", string(f)).Msg("id mapping: column not found")
				continue
			}
			if sections.Len(f) == 0 {
				log.Warn().Str("family", string(f)).Msg("id mapping: no mapping section")
				continue
			}

			desc := make([]any, len(vals))
			unknown := 0
			for i, v := range vals {
				c, ok := code(v)
				if !ok {
					continue
				}
				if d, ok := sections.Describe(f, c); ok {
					desc[i] = d
				} else {
					unknown++
				}
			}

			out = out.Mutate(stringSeries(f.DescriptionColumn(), desc))
			if err := out.Error(); err != nil {
				return dataframe.DataFrame{}, fmt.Errorf("map %s: %w", f, err)
			}
			mapped++
			if unknown > 0 {
				log.Debug().Str("column", string(f)).Int("unknown", unknown).Msg("unmapped codes")
			}
		}
		if mapped == 0 {
			return df, missingColumn("id columns")
		}
		return out, nil
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
