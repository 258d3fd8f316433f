package clean

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"diabclean/internal/encounters"
	"diabclean/internal/mapping"
)

// Variant names.
const (
	Baseline = "baseline"
	Patient  = "patient"
	Encoded  = "encoded"
	Full     = "full"
)

// Variants lists the pipeline variants in increasing order of treatment.
var Variants = []string{Baseline, Patient, Encoded, Full}

// DefaultDropThreshold is the missingness fraction above which a column is
// dropped.
const DefaultDropThreshold = 0.9

// Step is one named transform of a pipeline.
type Step struct {
	Name  string
	Apply Transform
}

// Pipeline applies its steps in order.
type Pipeline struct {
	Name  string
	Steps []Step
}

// StepReport records the table shape around one step.
type StepReport struct {
	Name       string
	RowsBefore int
	RowsAfter  int
	ColsBefore int
	ColsAfter  int
	Skipped    bool
	Detail     string
	Duration   time.Duration
}

// Report describes one pipeline run.
type Report struct {
	RunID      uuid.UUID
	Variant    string
	StartedAt  time.Time
	FinishedAt time.Time
	RowsIn     int
	RowsOut    int
	ColsIn     int
	ColsOut    int
	Steps      []StepReport
}

// Run applies every step to df. Steps failing with ErrMissingColumn or
// ErrMissingMapping are logged, marked skipped and leave the table as is.
// Any other error stops the run; the partial report is returned with it.
func (p Pipeline) Run(ctx context.Context, df dataframe.DataFrame, log zerolog.Logger) (dataframe.DataFrame, *Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		Variant:   p.Name,
		StartedAt: time.Now().UTC(),
		RowsIn:    df.Nrow(),
		ColsIn:    df.Ncol(),
	}
	log = log.With().Str("run_id", report.RunID.String()).Str("variant", p.Name).Logger()

	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return df, report, err
		}

		sr := StepReport{
			Name:       step.Name,
			RowsBefore: df.Nrow(),
			ColsBefore: df.Ncol(),
		}
		stepLog := log.With().Str("step", step.Name).Logger()

		start := time.Now()
		out, err := step.Apply(df, stepLog)
		sr.Duration = time.Since(start)
		switch {
		case skippable(err):
			sr.Skipped = true
			sr.Detail = err.Error()
			stepLog.Warn().Err(err).Msg("step skipped")
		case err != nil:
			report.Steps = append(report.Steps, sr)
			return df, report, fmt.Errorf("step %s: %w", step.Name, err)
		default:
			if err := out.Error(); err != nil {
				report.Steps = append(report.Steps, sr)
				return df, report, fmt.Errorf("step %s: %w", step.Name, err)
			}
			df = out
		}

		sr.RowsAfter = df.Nrow()
		sr.ColsAfter = df.Ncol()
		report.Steps = append(report.Steps, sr)

		stepLog.Info().
			Int("rows_before", sr.RowsBefore).
			Int("rows_after", sr.RowsAfter).
			Int("cols_before", sr.ColsBefore).
			Int("cols_after", sr.ColsAfter).
			Dur("elapsed", sr.Duration).
			Msg("step done")
	}

	report.FinishedAt = time.Now().UTC()
	report.RowsOut = df.Nrow()
	report.ColsOut = df.Ncol()
	return df, report, nil
}

// Options parameterize the variant pipelines.
type Options struct {
	Sections      *mapping.Sections
	DropThreshold float64
	// Markers are per-column missing markers; nil means none for baseline
	// and DefaultColumnMarkers otherwise.
	Markers map[string][]string
}

// NewPipeline builds the step list of a named variant.
//
//	baseline  standardize, drop sparse weight, drop deceased, dedupe rows, map ids
//	patient   baseline over all columns, plus gender/age restriction and one row per patient
//	encoded   patient plus readmitted, medication and binary encodings
//	full      encoded excluding hospice discharges, plus age ordinal and diagnosis groups
func NewPipeline(variant string, opts Options) (Pipeline, error) {
	markers := opts.Markers
	if markers == nil && variant != Baseline {
		markers = DefaultColumnMarkers
	}

	// The patient-level variants consider every column, except those their
	// restriction and dedupe steps need.
	sparse := DropSparseColumnsExcept(opts.DropThreshold,
		encounters.Gender, encounters.Age, encounters.PatientNbr)
	if variant == Baseline {
		sparse = DropSparseColumns(opts.DropThreshold, []string{encounters.Weight})
	}
	hospice := variant == Full

	steps := []Step{
		{"standardize_missing", StandardizeMissing(markers)},
		{"drop_sparse_columns", sparse},
		{"filter_deceased", FilterDeceased(opts.Sections, hospice)},
		{"drop_duplicate_rows", DropDuplicateRows()},
	}

	switch variant {
	case Baseline:
	case Patient, Encoded, Full:
		steps = append(steps,
			Step{"restrict_gender", RestrictGender()},
			Step{"restrict_age", RestrictAge()},
			Step{"drop_duplicate_patients", DropDuplicatePatients(encounters.PatientNbr)},
		)
	default:
		return Pipeline{}, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}

	steps = append(steps, Step{"map_ids", MapIDs(opts.Sections)})

	if variant == Encoded || variant == Full {
		steps = append(steps,
			Step{"encode_readmitted", EncodeReadmitted()},
			Step{"encode_medications", EncodeMedications()},
			Step{"encode_binary", EncodeBinary()},
		)
	}
	if variant == Full {
		steps = append(steps,
			Step{"encode_age", EncodeAge()},
			Step{"group_diagnoses", GroupDiagnoses()},
		)
	}

	return Pipeline{Name: variant, Steps: steps}, nil
}
