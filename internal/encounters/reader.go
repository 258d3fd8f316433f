package encounters

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"diabclean/internal/textio"
)

// DefaultNAMarkers are the raw-file missing-value markers.
var DefaultNAMarkers = []string{"?"}

// Options controls how the raw table is read.
type Options struct {
	// NAMarkers are cell values loaded as NA. Defaults to DefaultNAMarkers.
	NAMarkers []string
	// Encoding of the input file (see textio.NormalizeEncoding).
	Encoding string
}

// Reader streams an encounter CSV one row at a time.
type Reader struct {
	rc     io.ReadCloser
	csv    *csv.Reader
	header []string
	rowNum int64
}

// NewReader opens path and reads the header row.
func NewReader(path string, enc string) (*Reader, error) {
	rc, err := textio.Open(path, enc)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(rc)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Variable fields

	r := &Reader{rc: rc, csv: reader}

	r.header, err = r.csv.Read()
	if err != nil {
		rc.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("read header %s: empty file", path)
		}
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	r.rowNum++
	for i, h := range r.header {
		r.header[i] = strings.TrimSpace(h)
	}

	return r, nil
}

// Header returns the trimmed column names.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next data row, padded with empty cells when it is shorter
// than the header. Empty lines are skipped. Returns nil, io.EOF when done.
func (r *Reader) Next() ([]string, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			return nil, err
		}
		r.rowNum++

		// Skip empty rows
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}

		if len(row) > len(r.header) {
			return nil, fmt.Errorf("row %d: %d fields, header has %d", r.rowNum, len(row), len(r.header))
		}
		for len(row) < len(r.header) {
			row = append(row, "")
		}
		return row, nil
	}
}

// RowNum returns the current CSV row number (1-based, header included).
func (r *Reader) RowNum() int64 {
	return r.rowNum
}

func (r *Reader) Close() error {
	if r.rc != nil {
		return r.rc.Close()
	}
	return nil
}

// Read loads the whole encounter table. Cells equal to one of the NA markers
// become NA and column types are detected from the remaining values, except
// the diagnosis columns, which always load as strings.
func Read(path string, opts Options) (dataframe.DataFrame, error) {
	reader, err := NewReader(path, opts.Encoding)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer reader.Close()

	header := reader.Header()
	records := [][]string{header}
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("read %s: %w", path, err)
		}
		records = append(records, row)
	}

	if len(records) == 1 {
		return emptyFrame(header)
	}

	markers := opts.NAMarkers
	if len(markers) == 0 {
		markers = DefaultNAMarkers
	}
	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.WithTypes(codeColumnTypes()),
		dataframe.NaNValues(append([]string{"NaN"}, markers...)),
	)
	if err := df.Error(); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load %s: %w", path, err)
	}
	return df, nil
}

// codeColumnTypes pins the diagnosis columns to strings so codes like 038
// and 250.10 keep their text.
func codeColumnTypes() map[string]series.Type {
	types := make(map[string]series.Type, len(DiagnosisColumns))
	for _, col := range DiagnosisColumns {
		types[col] = series.String
	}
	return types
}

// emptyFrame builds a zero-row table of string columns.
func emptyFrame(header []string) (dataframe.DataFrame, error) {
	cols := make([]series.Series, len(header))
	for i, name := range header {
		cols[i] = series.New([]string{}, series.String, name)
	}
	df := dataframe.New(cols...)
	if err := df.Error(); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("empty table: %w", err)
	}
	return df, nil
}
