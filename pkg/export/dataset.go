package export

import "strconv"

// Dataset defines tabular export content. Blank is written for cells that are
// missing or empty.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	Blank   string
}

// Cell returns the rendered value of header in row.
func (d Dataset) Cell(row map[string]string, header string) string {
	if v := row[header]; v != "" {
		return v
	}
	return d.Blank
}

// OptionalInt formats v, leaving unknown values empty so Blank applies.
func OptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Renderer turns a dataset into file bytes.
type Renderer interface {
	Render(data Dataset, title string) ([]byte, error)
	ContentType() string
	Extension() string
}
