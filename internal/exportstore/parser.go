package exportstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// Fixed column counts per export kind. The GUI's CSV schemas are stable per
// grid; a row with the wrong width means the file is not what we asked for
// and the whole parse fails (the file is retained for diagnosis).
const (
	holdingsColumns = 9
	tradesColumns   = 8
	ordersColumns   = 9
)

// readRows decodes a UTF-8-BOM CSV export and returns its data rows,
// validating the column count against the kind's schema. The header row is
// skipped, not interpreted.
func readRows(path string, wantColumns int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.CodeExportParseFailed, "cannot open export", err)
	}
	defer f.Close()

	// The GUI writes UTF-8 with a BOM; the decoder strips it so the first
	// header cell compares clean.
	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, domain.WrapError(domain.CodeExportParseFailed, "malformed CSV", err)
	}
	if len(rows) == 0 {
		return nil, domain.Errorf(domain.CodeExportParseFailed, "export %s is empty", path)
	}

	data := rows[1:]
	for i, row := range data {
		if len(row) != wantColumns {
			return nil, domain.Errorf(domain.CodeExportParseFailed,
				"row %d has %d columns, schema requires %d", i+2, len(row), wantColumns)
		}
	}
	return data, nil
}

// parseNumber parses a CSV numeric cell: thousands separators stripped, an
// explicit plus sign tolerated (the PnL column prints "+670.00").
func parseNumber(cell string) (float64, error) {
	cleaned := strings.TrimSpace(cell)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("cell %q is not numeric", cell)
	}
	return v, nil
}

// ParseHoldings parses a holdings export:
// 证券代码, 证券名称, 股票余额, 可用余额, 冻结数量, 盈亏, 市值, 成本价, 现价.
func (s *Store) ParseHoldings(path string) ([]domain.HoldingRecord, error) {
	rows, err := readRows(path, holdingsColumns)
	if err != nil {
		return nil, err
	}
	records := make([]domain.HoldingRecord, 0, len(rows))
	for i, row := range rows {
		nums, err := parseNumbers(row[2:9])
		if err != nil {
			return nil, domain.Errorf(domain.CodeExportParseFailed, "holdings row %d: %v", i+2, err)
		}
		records = append(records, domain.HoldingRecord{
			Symbol:            strings.TrimSpace(row[0]),
			Name:              strings.TrimSpace(row[1]),
			Quantity:          nums[0],
			AvailableQuantity: nums[1],
			FrozenQuantity:    nums[2],
			PnL:               nums[3],
			MarketValue:       nums[4],
			CostPrice:         nums[5],
			CurrentPrice:      nums[6],
		})
	}
	return records, nil
}

// ParseTrades parses a trades export:
// 成交时间, 证券代码, 证券名称, 买卖方向, 成交价格, 成交数量, 成交金额, 手续费.
func (s *Store) ParseTrades(path string) ([]domain.TradeRecord, error) {
	rows, err := readRows(path, tradesColumns)
	if err != nil {
		return nil, err
	}
	records := make([]domain.TradeRecord, 0, len(rows))
	for i, row := range rows {
		nums, err := parseNumbers(row[4:8])
		if err != nil {
			return nil, domain.Errorf(domain.CodeExportParseFailed, "trades row %d: %v", i+2, err)
		}
		records = append(records, domain.TradeRecord{
			TradedAt: strings.TrimSpace(row[0]),
			Symbol:   strings.TrimSpace(row[1]),
			Name:     strings.TrimSpace(row[2]),
			Side:     strings.TrimSpace(row[3]),
			Price:    nums[0],
			Quantity: nums[1],
			Amount:   nums[2],
			Fee:      nums[3],
		})
	}
	return records, nil
}

// ParseOrders parses an orders export:
// 委托时间, 证券代码, 证券名称, 买卖方向, 委托价格, 委托数量, 成交数量, 撤单数量, 委托状态.
func (s *Store) ParseOrders(path string) ([]domain.OrderRecord, error) {
	rows, err := readRows(path, ordersColumns)
	if err != nil {
		return nil, err
	}
	records := make([]domain.OrderRecord, 0, len(rows))
	for i, row := range rows {
		nums, err := parseNumbers(row[4:8])
		if err != nil {
			return nil, domain.Errorf(domain.CodeExportParseFailed, "orders row %d: %v", i+2, err)
		}
		records = append(records, domain.OrderRecord{
			OrderedAt:      strings.TrimSpace(row[0]),
			Symbol:         strings.TrimSpace(row[1]),
			Name:           strings.TrimSpace(row[2]),
			Side:           strings.TrimSpace(row[3]),
			Price:          nums[0],
			Quantity:       nums[1],
			FilledQuantity: nums[2],
			Cancelled:      nums[3],
			Status:         strings.TrimSpace(row[8]),
		})
	}
	return records, nil
}

// CountRecords parses the file for its kind and returns the record count.
func (s *Store) CountRecords(kind domain.ExportKind, path string) (int, error) {
	switch kind {
	case domain.ExportHoldings:
		recs, err := s.ParseHoldings(path)
		return len(recs), err
	case domain.ExportTrades:
		recs, err := s.ParseTrades(path)
		return len(recs), err
	case domain.ExportOrders:
		recs, err := s.ParseOrders(path)
		return len(recs), err
	}
	return 0, domain.Errorf(domain.CodeExportParseFailed, "unknown export kind %q", kind)
}

func parseNumbers(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := parseNumber(c)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
