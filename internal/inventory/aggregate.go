// Package inventory は在庫ファイルを読み込み、在庫総額を計算します。
package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	CostColumn     = "Cost"
	QuantityColumn = "Quantity"

	// missingValue は列が存在しない場合に使う値です。
	missingValue = "0"
	utf8BOM      = "\ufeff"
)

// rowReader は1行ずつフィールドを返す読み取り器です。終端では io.EOF を返します。
type rowReader interface {
	Read() ([]string, error)
}

// Aggregate はタブ区切りテキスト（先頭行はヘッダー）を読み込み、全データ行の Cost * Quantity の合計を返します。
// 数値として解釈できない行は 0 として扱い、エラーにはしません。エラーになるのはストリームの読み取り失敗だけです。
func Aggregate(r io.Reader) (float64, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return sumRows(reader)
}

func sumRows(rows rowReader) (float64, error) {
	header, err := rows.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}
	cols := newColumns(header)

	var total float64
	for {
		record, err := rows.Read()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read row: %w", err)
		}
		total += cols.value(record)
	}
}

// columns はヘッダーから求めた Cost / Quantity 列の位置です。-1 は列なしを表します。
type columns struct {
	cost     int
	quantity int
}

func newColumns(header []string) columns {
	c := columns{cost: -1, quantity: -1}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		// 同名の列が複数ある場合は後ろの列を採用する
		switch name {
		case CostColumn:
			c.cost = i
		case QuantityColumn:
			c.quantity = i
		}
	}
	return c
}

func (c columns) value(record []string) float64 {
	cost, costOK := parseNumber(field(record, c.cost))
	quantity, quantityOK := parseNumber(field(record, c.quantity))
	if !costOK || !quantityOK {
		return 0
	}
	return cost * quantity
}

func field(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return missingValue
	}
	return record[index]
}

func parseNumber(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
