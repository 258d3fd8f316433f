package encounters

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
)

// WriteCSV writes df to path with a header row. NA cells are written as na.
func WriteCSV(df dataframe.DataFrame, path string, na string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	bw := bufio.NewWriterSize(file, 256*1024)
	if err := EncodeCSV(bw, df, na); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return file.Close()
}

// EncodeCSV writes df as CSV to w.
func EncodeCSV(w io.Writer, df dataframe.DataFrame, na string) error {
	if err := df.Error(); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	names := df.Names()
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	cols := make([][]any, len(names))
	for j, name := range names {
		cols[j] = Values(df.Col(name))
	}

	record := make([]string, len(names))
	for i := 0; i < df.Nrow(); i++ {
		for j := range cols {
			record[j] = formatCell(cols[j][i], na)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(v any, na string) string {
	switch x := v.(type) {
	case nil:
		return na
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
