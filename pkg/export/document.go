package export

import "io"

// Align positions a text block on the page.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// BlockKind enumerates renderable content blocks.
type BlockKind string

const (
	BlockText   BlockKind = "text"
	BlockTable  BlockKind = "table"
	BlockImages BlockKind = "images"
	BlockRule   BlockKind = "rule"
)

// Document is a renderer-agnostic description of one exported file: a header
// section, any number of body sections and a footer section, rendered in that
// order.
type Document struct {
	Header Section
	Body   []Section
	Footer Section
}

// Section groups blocks that belong together, e.g. one class scope.
type Section struct {
	Name   string
	Blocks []Block
}

// Block is a single piece of content. Only the fields matching Kind are used.
type Block struct {
	Kind   BlockKind
	Text   string
	Style  TextStyle
	Table  *Table
	Images []string
}

// TextStyle controls text rendering.
type TextStyle struct {
	Size  float64
	Bold  bool
	Align Align
	Muted bool
}

// Table holds a header row and data rows.
type Table struct {
	Columns []Column
	Rows    []Row
}

// Column describes one table column; Width is a relative weight.
type Column struct {
	Title string
	Width float64
}

// Row is one table row. Placeholder rows stand in for an empty record set.
type Row struct {
	Cells       []string
	Placeholder bool
}

// Blocks returns every block of the document in rendering order.
func (d Document) Blocks() []Block {
	blocks := make([]Block, 0, len(d.Header.Blocks)+len(d.Footer.Blocks))
	blocks = append(blocks, d.Header.Blocks...)
	for _, section := range d.Body {
		blocks = append(blocks, section.Blocks...)
	}
	return append(blocks, d.Footer.Blocks...)
}

// Tables returns the tables of a section in order.
func (s Section) Tables() []*Table {
	var tables []*Table
	for _, block := range s.Blocks {
		if block.Kind == BlockTable && block.Table != nil {
			tables = append(tables, block.Table)
		}
	}
	return tables
}

// DataRows counts non-placeholder rows.
func (t *Table) DataRows() int {
	n := 0
	for _, row := range t.Rows {
		if !row.Placeholder {
			n++
		}
	}
	return n
}

// PlaceholderRows counts placeholder rows.
func (t *Table) PlaceholderRows() int {
	return len(t.Rows) - t.DataRows()
}

// Renderer serializes a Document into a file format.
type Renderer interface {
	Render(w io.Writer, doc Document) error
	Extension() string
}
