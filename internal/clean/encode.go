package clean

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/rs/zerolog"

	"diabclean/internal/encounters"
)

// Encoding domains. Every value of a column must be a key of its domain.
var (
	ReadmittedDomain  = map[string]int{"<30": 1, ">30": 0, "NO": 0}
	MedicationDomain  = map[string]int{"No": 0, "Steady": 1, "Up": 1, "Down": 1}
	ChangeDomain      = map[string]int{"No": 0, "Ch": 1}
	DiabetesMedDomain = map[string]int{"No": 0, "Yes": 1}
	GenderDomain      = map[string]int{"Female": 0, "Male": 1}
)

// AgeDomain maps each age bin to its ordinal.
var AgeDomain = func() map[string]int {
	m := make(map[string]int, len(encounters.AgeBins))
	for i, bin := range encounters.AgeBins {
		m[bin] = i
	}
	return m
}()

// encode replaces col with its integer encoding.
func encode(df dataframe.DataFrame, col string, domain map[string]int) (dataframe.DataFrame, error) {
	vals, err := column(df, col)
	if err != nil {
		return df, err
	}

	codes := make([]int, len(vals))
	for i, v := range vals {
		s, ok := text(v)
		if !ok {
			return dataframe.DataFrame{}, &DomainError{Column: col, Row: i, Value: NA}
		}
		c, ok := domain[s]
		if !ok {
			return dataframe.DataFrame{}, &DomainError{Column: col, Row: i, Value: s}
		}
		codes[i] = c
	}

	out := df.Mutate(intSeries(col, codes))
	if err := out.Error(); err != nil {
		return dataframe.DataFrame{}, err
	}
	return out, nil
}

// encodeEach encodes every present column; absent ones are logged. It fails
// with ErrMissingColumn only when none of the columns exist.
func encodeEach(df dataframe.DataFrame, log zerolog.Logger, domains map[string]map[string]int, order []string) (dataframe.DataFrame, error) {
	out := df
	encoded := 0
	for _, col := range order {
		next, err := encode(out, col, domains[col])
		if skippable(err) {
			log.Warn().Str("column", col).Msg("encode: column not found")
			continue
		}
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		out = next
		encoded++
	}
	if encoded == 0 {
		return df, missingColumn(strings.Join(order, ","))
	}
	return out, nil
}

// EncodeReadmitted encodes readmission within 30 days as 1, otherwise 0.
func EncodeReadmitted() Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		return encode(df, encounters.Readmitted, ReadmittedDomain)
	}
}

// EncodeMedications encodes each medication column as 0 (No) or 1 (given).
func EncodeMedications() Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		domains := make(map[string]map[string]int, len(encounters.Medications))
		for _, m := range encounters.Medications {
			domains[m] = MedicationDomain
		}
		return encodeEach(df, log, domains, encounters.Medications)
	}
}

// EncodeBinary encodes change, diabetesMed and gender as 0/1.
func EncodeBinary() Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		domains := map[string]map[string]int{
			encounters.Change:      ChangeDomain,
			encounters.DiabetesMed: DiabetesMedDomain,
			encounters.Gender:      GenderDomain,
		}
		return encodeEach(df, log, domains, []string{encounters.Change, encounters.DiabetesMed, encounters.Gender})
	}
}

// EncodeAge replaces the age bin with its ordinal 0..9.
func EncodeAge() Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		return encode(df, encounters.Age, AgeDomain)
	}
}

// ICD-9 chapter groups used for diagnosis grouping.
const (
	GroupCirculatory     = "Circulatory"
	GroupRespiratory     = "Respiratory"
	GroupDigestive       = "Digestive"
	GroupDiabetes        = "Diabetes"
	GroupInjury          = "Injury"
	GroupMusculoskeletal = "Musculoskeletal"
	GroupGenitourinary   = "Genitourinary"
	GroupNeoplasms       = "Neoplasms"
	GroupOther           = "Other"
)

// DiagnosisGroup maps an ICD-9 code to its chapter group. V and E
// supplementary codes and unparseable codes are Other.
func DiagnosisGroup(icd9 string) string {
	icd9 = strings.TrimSpace(icd9)
	if icd9 == "" || strings.ContainsAny(icd9[:1], "VvEe") {
		return GroupOther
	}
	f, err := strconv.ParseFloat(icd9, 64)
	if err != nil {
		return GroupOther
	}

	n := int(math.Floor(f))
	switch {
	case n == 250:
		return GroupDiabetes
	case (n >= 390 && n <= 459) || n == 785:
		return GroupCirculatory
	case (n >= 460 && n <= 519) || n == 786:
		return GroupRespiratory
	case (n >= 520 && n <= 579) || n == 787:
		return GroupDigestive
	case n >= 800 && n <= 999:
		return GroupInjury
	case n >= 710 && n <= 739:
		return GroupMusculoskeletal
	case (n >= 580 && n <= 629) || n == 788:
		return GroupGenitourinary
	case n >= 140 && n <= 239:
		return GroupNeoplasms
	}
	return GroupOther
}

// GroupDiagnoses adds diag_N_group next to each diagnosis column. NA codes
// stay NA.
func GroupDiagnoses() Transform {
	return func(df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, error) {
		out := df
		grouped := 0
		for _, col := range encounters.DiagnosisColumns {
			vals, err := column(df, col)
			if err != nil {
				log.Warn().Str("column", col).Msg("diagnosis grouping: column not found")
				continue
			}

			groups := make([]any, len(vals))
			for i, v := range vals {
				if s, ok := text(v); ok {
					groups[i] = DiagnosisGroup(s)
				}
			}
			out = out.Mutate(stringSeries(col+"_group", groups))
			if err := out.Error(); err != nil {
				return dataframe.DataFrame{}, err
			}
			grouped++
		}
		if grouped == 0 {
			return df, missingColumn(strings.Join(encounters.DiagnosisColumns, ","))
		}
		return out, nil
	}
}
