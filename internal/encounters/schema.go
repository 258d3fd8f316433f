// Package encounters reads and writes the diabetes encounter table: one row
// per hospital encounter, held in memory as a gota DataFrame.
package encounters

import (
	"github.com/go-gota/gota/series"
)

// Column names of the UCI diabetes 130-US hospitals dataset.
const (
	EncounterID            = "encounter_id"
	PatientNbr             = "patient_nbr"
	Race                   = "race"
	Gender                 = "gender"
	Age                    = "age"
	Weight                 = "weight"
	AdmissionTypeID        = "admission_type_id"
	DischargeDispositionID = "discharge_disposition_id"
	AdmissionSourceID      = "admission_source_id"
	TimeInHospital         = "time_in_hospital"
	PayerCode              = "payer_code"
	MedicalSpecialty       = "medical_specialty"
	MaxGluSerum            = "max_glu_serum"
	A1CResult              = "A1Cresult"
	Change                 = "change"
	DiabetesMed            = "diabetesMed"
	Readmitted             = "readmitted"
)

// DiagnosisColumns hold primary, secondary and additional ICD-9 codes.
var DiagnosisColumns = []string{"diag_1", "diag_2", "diag_3"}

// Medications are the 23 drug columns, each one of No/Steady/Up/Down.
var Medications = []string{
	"metformin", "repaglinide", "nateglinide", "chlorpropamide",
	"glimepiride", "acetohexamide", "glipizide", "glyburide",
	"tolbutamide", "pioglitazone", "rosiglitazone", "acarbose",
	"miglitol", "troglitazone", "tolazamide", "examide",
	"citoglipton", "insulin", "glyburide-metformin", "glipizide-metformin",
	"glimepiride-pioglitazone", "metformin-rosiglitazone", "metformin-pioglitazone",
}

// AgeBins are the ten ordered age brackets.
var AgeBins = []string{
	"[0-10)", "[10-20)", "[20-30)", "[30-40)", "[40-50)",
	"[50-60)", "[60-70)", "[70-80)", "[80-90)", "[90-100)",
}

// Genders is the gender domain kept by cleaning; the raw data also carries
// "Unknown/Invalid".
var Genders = []string{"Female", "Male"}

// HasColumn reports whether names contains col.
func HasColumn(names []string, col string) bool {
	for _, n := range names {
		if n == col {
			return true
		}
	}
	return false
}

// Value converts a table element to nil (NA), int64, float64, bool or string.
func Value(e series.Element) any {
	if e.IsNA() {
		return nil
	}
	switch e.Type() {
	case series.Int:
		v, _ := e.Int()
		return int64(v)
	case series.Float:
		return e.Float()
	case series.Bool:
		v, _ := e.Bool()
		return v
	}
	return e.String()
}

// Values converts every element of s with Value.
func Values(s series.Series) []any {
	out := make([]any, s.Len())
	for i := range out {
		out[i] = Value(s.Elem(i))
	}
	return out
}
