package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

const (
	sniffSize = 3072

	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeZIP  = "application/zip"
)

// Format は在庫ファイルの形式です。
type Format string

const (
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat は先頭バイト列から在庫ファイルの形式を判定します。判定できないものは TSV として扱います。
func DetectFormat(head []byte) Format {
	mt := mimetype.Detect(head)
	if mt.Is(mimeXLSX) || mt.Is(mimeZIP) {
		return FormatXLSX
	}
	return FormatTSV
}

// Calculator は在庫ファイルの形式を判定して総額を計算します。
type Calculator struct{}

// NewCalculator は Calculator を作成します。
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate は r の内容から在庫総額を計算します。
func (c *Calculator) Calculate(r io.Reader) (float64, error) {
	if r == nil {
		return 0, errors.New("reader is nil")
	}
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read inventory: %w", err)
	}

	switch DetectFormat(head) {
	case FormatXLSX:
		return AggregateXLSX(br)
	default:
		return Aggregate(br)
	}
}

// AggregateXLSX はワークブックの先頭シートを TSV と同じ規則で集計します。
func AggregateXLSX(r io.Reader) (float64, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, nil
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	return sumRows(&sheetRows{rows: rows})
}

// sheetRows は excelize.Rows を rowReader に合わせます。空行は読み飛ばします。
type sheetRows struct {
	rows *excelize.Rows
}

func (s *sheetRows) Read() ([]string, error) {
	for s.rows.Next() {
		cols, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		if isBlank(cols) {
			continue
		}
		return cols, nil
	}
	if err := s.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
