package entity

// Expense column names, in the order they are checked
const (
	ColumnDate        = "date"
	ColumnEmployee    = "employee"
	ColumnCategory    = "category"
	ColumnAmount      = "amount"
	ColumnDescription = "description"
)

// ExpenseColumns is the closed header set an expense file must carry
var ExpenseColumns = []string{
	ColumnDate,
	ColumnEmployee,
	ColumnCategory,
	ColumnAmount,
	ColumnDescription,
}

// Expense represents one row of an uploaded expense file
type Expense struct {
	Date        string  `json:"date"`
	Employee    string  `json:"employee"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}
