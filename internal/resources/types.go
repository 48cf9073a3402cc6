package resources

import "time"

// Column describes one column of a user table.
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	PrimaryKey   bool    `json:"primary_key"`
	DefaultValue *string `json:"default_value"`
}

// ForeignKey describes one outgoing reference from a user table.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	OnUpdate         string `json:"on_update"`
	OnDelete         string `json:"on_delete"`
}

// Table describes one user table in the store.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// DatabaseSchema is the live schema of all user tables.
type DatabaseSchema struct {
	Tables []Table `json:"tables"`
}

// FileInfo describes one file under the data directory. Type-specific fields
// are populated only for the matching kind.
type FileInfo struct {
	Path         string    `json:"path"`
	Type         string    `json:"type"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`

	// CSV
	Headers          []string `json:"headers,omitempty"`
	Delimiter        string   `json:"delimiter,omitempty"`
	RowCountEstimate int      `json:"row_count_estimate,omitempty"`

	// JSON
	Structure *JSONStructure `json:"structure,omitempty"`

	// Text
	LineCount int `json:"line_count,omitempty"`

	// Set when metadata extraction failed; the file is still listed.
	Error string `json:"error,omitempty"`
}

// JSONStructure summarizes the shape of a JSON document without its contents.
type JSONStructure struct {
	RootType    string   `json:"root_type"`
	Keys        []string `json:"keys,omitempty"`
	ArrayLength int      `json:"array_length,omitempty"`
	ElementKeys []string `json:"element_keys,omitempty"`
}

// Filesystem is the scanned state of the data directory.
type Filesystem struct {
	RootPath   string     `json:"root_path"`
	Files      []FileInfo `json:"files"`
	TotalFiles int        `json:"total_files"`
}

// Context is the complete resource context handed to generation, validation,
// and repair. It is a point-in-time view and may go stale.
type Context struct {
	Database    DatabaseSchema `json:"database"`
	Filesystem  Filesystem     `json:"filesystem"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// TableNames returns the names of all user tables in the context.
func (c *Context) TableNames() []string {
	names := make([]string, 0, len(c.Database.Tables))
	for _, t := range c.Database.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Table looks up a table by name. Returns nil if absent.
func (c *Context) Table(name string) *Table {
	for i := range c.Database.Tables {
		if c.Database.Tables[i].Name == name {
			return &c.Database.Tables[i]
		}
	}
	return nil
}

// File looks up a file by relative path. Returns nil if absent.
func (c *Context) File(path string) *FileInfo {
	for i := range c.Filesystem.Files {
		if c.Filesystem.Files[i].Path == path {
			return &c.Filesystem.Files[i]
		}
	}
	return nil
}
