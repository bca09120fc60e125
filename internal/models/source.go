package models

import "time"

// Logical table names resolved through the table mappings.
const (
	TableSignals = "signals"
	TableUpdates = "updates"
	TableFills   = "fills"
)

// RawTable is a source table with unknown columns. Row values are
// normalized to string, int64, float64, bool, time.Time or nil.
type RawTable struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *RawTable) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// SourceSnapshot is the result of one load from the source database.
type SourceSnapshot struct {
	Available []string             `json:"available"`
	Tables    map[string]*RawTable `json:"tables"`
	LoadedAt  time.Time            `json:"loaded_at"`
}

// Table returns the table loaded under a logical name, or nil.
func (s *SourceSnapshot) Table(logical string) *RawTable {
	if s == nil || s.Tables == nil {
		return nil
	}
	return s.Tables[logical]
}

// UpdateEvent is one status change recorded against a signal.
type UpdateEvent struct {
	SignalID   string     `json:"signal_id"`
	UpdateType string     `json:"update_type"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// ConnectionStatus describes the reachability of the source database.
type ConnectionStatus struct {
	Connected bool      `json:"connected"`
	Driver    string    `json:"driver"`
	URLSource string    `json:"url_source,omitempty"`
	Target    string    `json:"target,omitempty"`
	Category  string    `json:"category,omitempty"`
	Error     string    `json:"error,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
