package tables

import "fmt"

// NamedRow is a row whose cells are keyed by column title.
type NamedRow struct {
	ID         int64          `json:"id"`
	TableID    int64          `json:"tableId"`
	CreatedBy  string         `json:"createdBy"`
	CreatedAt  string         `json:"createdAt"`
	LastEditBy string         `json:"lastEditBy"`
	LastEditAt string         `json:"lastEditAt"`
	Data       map[string]any `json:"data"`
}

// TransformRows keys each row's cells by column title. A cell whose column
// is unknown is keyed "column_{id}".
func TransformRows(rows []Row, columns []Column) []NamedRow {
	titles := make(map[int64]string, len(columns))
	for _, col := range columns {
		titles[col.ID] = col.Title
	}
	out := make([]NamedRow, 0, len(rows))
	for _, r := range rows {
		named := NamedRow{
			ID:         r.ID,
			TableID:    r.TableID,
			CreatedBy:  r.CreatedBy,
			CreatedAt:  r.CreatedAt,
			LastEditBy: r.LastEditBy,
			LastEditAt: r.LastEditAt,
			Data:       make(map[string]any, len(r.Data)),
		}
		for _, cell := range r.Data {
			name, ok := titles[cell.ColumnID]
			if !ok {
				name = fmt.Sprintf("column_%d", cell.ColumnID)
			}
			named.Data[name] = cell.Value
		}
		out = append(out, named)
	}
	return out
}
