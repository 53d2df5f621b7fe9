package core

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ColumnRole is the semantic role of a dataset column.
type ColumnRole string

const (
	RoleFeature   ColumnRole = "feature"
	RoleTarget    ColumnRole = "target"
	RoleTimestamp ColumnRole = "timestamp"
)

// ColumnMeta describes one dataset column as supplied by the dataset collaborator.
type ColumnMeta struct {
	Name    string     `json:"name" yaml:"name"`
	Role    ColumnRole `json:"role" yaml:"role"`
	Numeric bool       `json:"numeric" yaml:"numeric"`
}

// DatasetMeta is the column-role metadata stored with a dataset.
type DatasetMeta struct {
	Rows    int          `json:"n_rows,omitempty"`
	Columns []ColumnMeta `json:"columns"`
}

// Dataset is an uploaded tabular dataset. Owned by the dataset collaborator.
type Dataset struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:255;not null"`
	FilePath  string `gorm:"size:512;not null"`
	Format    string `gorm:"size:50;default:'csv'"`
	Meta      datatypes.JSONType[DatasetMeta]
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName pins the table name used by every dialect.
func (Dataset) TableName() string { return "datasets" }

// Columns returns the dataset's column metadata.
func (d *Dataset) Columns() []ColumnMeta {
	return d.Meta.Data().Columns
}

// Template is a named model template with default hyperparameters.
// Owned by the template collaborator.
type Template struct {
	Name                   string `gorm:"primaryKey;size:100"`
	TaskType               string `gorm:"size:50;not null"`
	DefaultHyperparameters datatypes.JSONMap
	Schema                 datatypes.JSON
	CreatedAt              time.Time `gorm:"autoCreateTime"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}

// TableName pins the table name used by every dialect.
func (Template) TableName() string { return "model_templates" }

// AfterFind turns numeric defaults back into Go numbers.
func (t *Template) AfterFind(*gorm.DB) error {
	NormalizeNumbers(t.DefaultHyperparameters)
	return nil
}
