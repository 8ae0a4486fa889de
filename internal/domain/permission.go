package domain

import "sort"

// Identity is the Superset user a request acts on behalf of
type Identity struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// Column describes a dataset column as reported by Superset
type Column struct {
	Name       string `json:"column_name"`
	Type       string `json:"type,omitempty"`
	IsTemporal bool   `json:"is_dttm"`
}

// Dataset is a Superset dataset visible to the caller
type Dataset struct {
	ID      int      `json:"id"`
	Name    string   `json:"table_name"`
	Columns []Column `json:"columns"`
}

// HasColumn reports whether the dataset exposes the named column
func (d Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the dataset's column names in schema order
func (d Dataset) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		names = append(names, c.Name)
	}
	return names
}

// PermissionContext is the set of datasets the caller may read.
// It is built once per request and never mutated afterwards.
type PermissionContext struct {
	Identity Identity
	Datasets map[int]Dataset
}

// Dataset returns the accessible dataset with the given id
func (p *PermissionContext) Dataset(id int) (Dataset, bool) {
	if p == nil {
		return Dataset{}, false
	}
	ds, ok := p.Datasets[id]
	return ds, ok
}

// DatasetIDs returns accessible dataset ids in ascending order
func (p *PermissionContext) DatasetIDs() []int {
	ids := make([]int, 0, len(p.Datasets))
	for id := range p.Datasets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
