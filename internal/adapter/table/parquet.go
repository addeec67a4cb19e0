package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/parquet-go/parquet-go"
)

const parquetBatch = 1024

// readParquet flattens every row group into string cells. Nulls become empty
// cells and DATE columns are rendered as YYYY-MM-DD.
func readParquet(path string) (domain.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("open parquet input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("stat parquet input: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("open parquet file: %w", err)
	}

	schema := pf.Schema()
	paths := schema.Columns()
	header := make([]string, len(paths))
	dateColumn := make([]bool, len(paths))
	for i, p := range paths {
		header[i] = strings.Join(p, ".")
		if leaf, ok := schema.Lookup(p...); ok {
			if lt := leaf.Node.Type().LogicalType(); lt != nil && lt.Date != nil {
				dateColumn[i] = true
			}
		}
	}

	t := domain.RawTable{Header: header}
	buf := make([]parquet.Row, parquetBatch)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(rg, buf, dateColumn, &t); err != nil {
			return domain.RawTable{}, err
		}
	}
	return t, nil
}

func readRowGroup(rg parquet.RowGroup, buf []parquet.Row, dateColumn []bool, t *domain.RawTable) error {
	rows := rg.Rows()
	defer rows.Close()

	width := len(t.Header)
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			cells := make([]string, width)
			for _, v := range row {
				col := v.Column()
				if col < 0 || col >= width {
					continue
				}
				cells[col] = formatValue(v, dateColumn[col])
			}
			t.Rows = append(t.Rows, cells)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func formatValue(v parquet.Value, isDate bool) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		if isDate {
			return time.Unix(int64(v.Int32())*86400, 0).UTC().Format("2006-01-02")
		}
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
