package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/garyjia/expense-validator/internal/domain/entity"
)

const utf8BOM = "\ufeff"

// ExpenseParser converts delimited expense text into typed expenses
type ExpenseParser interface {
	Parse(raw string) ([]entity.Expense, error)
}

type expenseParserImpl struct{}

// NewExpenseParser creates a new ExpenseParser
func NewExpenseParser() ExpenseParser {
	return &expenseParserImpl{}
}

// Parse reads a header row followed by data rows. The header must contain
// exactly the expense columns; every cell must be non-empty.
func (p *expenseParserImpl) Parse(raw string) ([]entity.Expense, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, utf8BOM)))
	reader.FieldsPerRecord = -1

	header, err := readRecord(reader)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &entity.ParseError{Msg: fmt.Sprintf("CSV parsing error: %v", err)}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	index, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	expenses := make([]entity.Expense, 0)
	for {
		record, err := readRecord(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		rowNumber := len(expenses) + 2
		if err != nil {
			return nil, &entity.ParseError{Row: rowNumber, Msg: fmt.Sprintf("CSV parsing error: %v", err)}
		}
		if len(record) != len(header) {
			return nil, &entity.ParseError{
				Row: rowNumber,
				Msg: fmt.Sprintf("CSV parsing error: expected %d fields, found %d", len(header), len(record)),
			}
		}

		expense, err := parseRow(record, index, rowNumber)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}

	return expenses, nil
}

// readRecord returns the next record that has at least one non-blank field
func readRecord(reader *csv.Reader) ([]string, error) {
	for {
		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if !isBlank(record) {
			return record, nil
		}
	}
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// indexHeader maps each expense column to its position in header
func indexHeader(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range entity.ExpenseColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &entity.ParseError{Msg: "Missing required columns: " + strings.Join(missing, ", ")}
	}

	// A repeated expense column is unexpected from its second occurrence on
	var extra []string
	for i, name := range header {
		if !isExpenseColumn(name) || index[name] != i {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		return nil, &entity.ParseError{Msg: "Unexpected columns: " + strings.Join(extra, ", ")}
	}

	return index, nil
}

func isExpenseColumn(name string) bool {
	for _, col := range entity.ExpenseColumns {
		if col == name {
			return true
		}
	}
	return false
}

func parseRow(record []string, index map[string]int, rowNumber int) (entity.Expense, error) {
	values := make(map[string]string, len(entity.ExpenseColumns))
	for _, col := range entity.ExpenseColumns {
		value := strings.TrimSpace(record[index[col]])
		if value == "" {
			return entity.Expense{}, &entity.ParseError{Row: rowNumber, Column: col, Msg: col + " is empty"}
		}
		values[col] = value
	}

	amount, err := strconv.ParseFloat(values[entity.ColumnAmount], 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return entity.Expense{}, &entity.ParseError{
			Row:    rowNumber,
			Column: entity.ColumnAmount,
			Msg:    "amount is not a valid number",
		}
	}

	return entity.Expense{
		Date:        values[entity.ColumnDate],
		Employee:    values[entity.ColumnEmployee],
		Category:    values[entity.ColumnCategory],
		Amount:      amount,
		Description: values[entity.ColumnDescription],
	}, nil
}
