package encounters

import (
	"fmt"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// parquetBatch is the number of rows handed to the writer per call.
const parquetBatch = 10000

// ParquetWriter writes encounter tables to a Parquet file. Every column is
// optional so NA cells are stored as nulls. The column set is fixed when the
// writer is created.
//
// Writer configuration:
//
//	Zstd(3) compression, 8KB pages, 64MB row groups, page-level statistics.
//
// Parquet groups order their fields by name, so the file lists columns
// alphabetically regardless of table order.
type ParquetWriter struct {
	file   *os.File
	writer *parquet.Writer
	schema *parquet.Schema
	names  []string
	types  []series.Type
	leaf   []int // column index of names[i] in the schema
	count  int
}

// Schema builds the Parquet schema for columns with the given gota types.
func Schema(names []string, types []series.Type) (*parquet.Schema, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("schema: %d names, %d types", len(names), len(types))
	}
	group := make(parquet.Group, len(names))
	for i, name := range names {
		var node parquet.Node
		switch types[i] {
		case series.Int:
			node = parquet.Int(64)
		case series.Float:
			node = parquet.Leaf(parquet.DoubleType)
		case series.Bool:
			node = parquet.Leaf(parquet.BooleanType)
		default:
			node = parquet.String()
		}
		group[name] = parquet.Optional(node)
	}
	return parquet.NewSchema("encounter", group), nil
}

// NewParquetWriter creates filename and a writer for the given columns.
func NewParquetWriter(filename string, names []string, types []series.Type) (*ParquetWriter, error) {
	schema, err := Schema(names, types)
	if err != nil {
		return nil, err
	}

	leaf := make([]int, len(names))
	for i, name := range names {
		col, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("schema: column %q not found", name)
		}
		leaf[i] = col.ColumnIndex
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}

	writer := parquet.NewWriter(file,
		schema,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.PageBufferSize(8*1024),
		parquet.WriteBufferSize(64*1024*1024),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("diabclean", "1.0", ""),
	)

	return &ParquetWriter{
		file:   file,
		writer: writer,
		schema: schema,
		names:  names,
		types:  types,
		leaf:   leaf,
	}, nil
}

// Write appends every row of df. df must carry the writer's columns.
func (w *ParquetWriter) Write(df dataframe.DataFrame) (int, error) {
	if err := df.Error(); err != nil {
		return 0, err
	}

	cols := make([][]any, len(w.names))
	for i, name := range w.names {
		if !HasColumn(df.Names(), name) {
			return 0, fmt.Errorf("write parquet: missing column %q", name)
		}
		cols[i] = Values(df.Col(name))
	}

	written := 0
	batch := make([]parquet.Row, 0, parquetBatch)
	for r := 0; r < df.Nrow(); r++ {
		row := make(parquet.Row, len(w.names))
		for i := range w.names {
			row[w.leaf[i]] = parquetValue(cols[i][r], w.types[i]).Level(0, definition(cols[i][r]), w.leaf[i])
		}
		batch = append(batch, row)

		if len(batch) == parquetBatch {
			n, err := w.writeRows(batch)
			written += n
			if err != nil {
				return written, err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		n, err := w.writeRows(batch)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (w *ParquetWriter) writeRows(rows []parquet.Row) (int, error) {
	n, err := w.writer.WriteRows(rows)
	w.count += n
	if err != nil {
		return n, fmt.Errorf("write parquet rows: %w", err)
	}
	return n, nil
}

// Close flushes the final row group and closes the file.
func (w *ParquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the total number of rows written.
func (w *ParquetWriter) Count() int {
	return w.count
}

// WriteParquet writes df to filename in one pass.
func WriteParquet(df dataframe.DataFrame, filename string) (int, error) {
	w, err := NewParquetWriter(filename, df.Names(), df.Types())
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(df); err != nil {
		w.Close()
		return w.Count(), err
	}
	if err := w.Close(); err != nil {
		return w.Count(), err
	}
	return w.Count(), nil
}

func definition(v any) int {
	if v == nil {
		return 0
	}
	return 1
}

func parquetValue(v any, t series.Type) parquet.Value {
	if v == nil {
		return parquet.NullValue()
	}
	switch t {
	case series.Int:
		return parquet.Int64Value(v.(int64))
	case series.Float:
		return parquet.DoubleValue(v.(float64))
	case series.Bool:
		return parquet.BooleanValue(v.(bool))
	}
	return parquet.ByteArrayValue([]byte(fmt.Sprint(v)))
}
