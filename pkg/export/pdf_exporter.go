package export

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jung-kurt/gofpdf"
)

const (
	defaultFontFamily = "Arial"
	baseFontSize      = 10.0
	tableLineHeight   = 6.0
	logoHeight        = 14.0
)

// ErrUnencodableText is returned when a document holds text the core PDF fonts
// cannot represent and no UTF-8 font is configured.
var ErrUnencodableText = errors.New("text needs a UTF-8 font")

// PDFOptions configures the PDF renderer.
type PDFOptions struct {
	// FontPath points at a TTF font with CJK coverage. When empty the core
	// Arial font is used and only cp1252 text can be rendered.
	FontPath   string
	FontFamily string
	// Uncompressed disables stream compression, mostly useful for inspection.
	Uncompressed bool
}

// PDFExporter renders documents to A4 PDF using gofpdf.
type PDFExporter struct {
	opts PDFOptions
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter(opts PDFOptions) *PDFExporter {
	if opts.FontFamily == "" {
		if opts.FontPath != "" {
			opts.FontFamily = "body"
		} else {
			opts.FontFamily = defaultFontFamily
		}
	}
	return &PDFExporter{opts: opts}
}

// Extension implements Renderer.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render writes the document as PDF. The footer section is repeated at the
// bottom of every page.
func (e *PDFExporter) Render(w io.Writer, doc Document) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(!e.opts.Uncompressed)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)

	tr := func(s string) string { return s }
	if e.opts.FontPath != "" {
		if _, err := os.Stat(e.opts.FontPath); err != nil {
			return fmt.Errorf("font %s: %w", e.opts.FontPath, err)
		}
		pdf.AddUTF8Font(e.opts.FontFamily, "", e.opts.FontPath)
		pdf.AddUTF8Font(e.opts.FontFamily, "B", e.opts.FontPath)
	} else {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
		if r, ok := firstUnencodable(doc, tr); ok {
			return fmt.Errorf("%w: %q", ErrUnencodableText, r)
		}
	}

	r := &pdfRenderer{pdf: pdf, family: e.opts.FontFamily, tr: tr, utf8: e.opts.FontPath != ""}
	pdf.SetFooterFunc(func() {
		if len(doc.Footer.Blocks) == 0 {
			return
		}
		pdf.SetY(-15)
		for _, block := range doc.Footer.Blocks {
			if block.Kind == BlockText {
				r.text(block.Text, block.Style)
			}
		}
	})
	pdf.AddPage()

	for _, block := range doc.Header.Blocks {
		r.block(block)
	}
	for _, section := range doc.Body {
		for _, block := range section.Blocks {
			r.block(block)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

type pdfRenderer struct {
	pdf    *gofpdf.Fpdf
	family string
	tr     func(string) string
	utf8   bool
}

func (r *pdfRenderer) contentWidth() float64 {
	pageW, _ := r.pdf.GetPageSize()
	left, _, right, _ := r.pdf.GetMargins()
	return pageW - left - right
}

func (r *pdfRenderer) setFont(bold bool, size float64) {
	style := ""
	if bold {
		style = "B"
	}
	if size <= 0 {
		size = baseFontSize
	}
	r.pdf.SetFont(r.family, style, size)
}

func (r *pdfRenderer) block(b Block) {
	if r.pdf.Err() {
		return
	}
	switch b.Kind {
	case BlockText:
		r.text(b.Text, b.Style)
	case BlockTable:
		if b.Table != nil {
			r.table(b.Table)
		}
	case BlockImages:
		r.images(b.Images)
	case BlockRule:
		left, _, _, _ := r.pdf.GetMargins()
		y := r.pdf.GetY() + 2
		r.pdf.Line(left, y, left+r.contentWidth(), y)
		r.pdf.Ln(4)
	}
}

func (r *pdfRenderer) text(txt string, style TextStyle) {
	r.setFont(style.Bold, style.Size)
	if style.Muted {
		r.pdf.SetTextColor(110, 110, 110)
		defer r.pdf.SetTextColor(0, 0, 0)
	}
	size := style.Size
	if size <= 0 {
		size = baseFontSize
	}
	r.pdf.MultiCell(0, size*0.5, r.tr(txt), "", alignCode(style.Align), false)
	r.pdf.Ln(1)
}

func (r *pdfRenderer) images(paths []string) {
	if len(paths) == 0 {
		return
	}
	x, _, _, _ := r.pdf.GetMargins()
	y := r.pdf.GetY()
	for _, path := range paths {
		info := r.pdf.RegisterImageOptions(path, gofpdf.ImageOptions{ReadDpi: true})
		if info == nil || r.pdf.Err() {
			return
		}
		width := logoHeight * info.Width() / info.Height()
		r.pdf.ImageOptions(path, x, y, width, logoHeight, false, gofpdf.ImageOptions{ReadDpi: true}, 0, "")
		x += width + 4
	}
	r.pdf.SetY(y + logoHeight + 3)
}

func (r *pdfRenderer) table(t *Table) {
	if len(t.Columns) == 0 {
		return
	}
	widths := columnWidths(t.Columns, r.contentWidth())

	header := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Title
	}
	r.setFont(true, baseFontSize)
	r.row(widths, header, "C")

	r.setFont(false, baseFontSize)
	for _, row := range t.Rows {
		align := "L"
		if row.Placeholder {
			align = "C"
		}
		r.row(widths, row.Cells, align)
	}
	r.pdf.Ln(3)
}

// row draws one bordered table row whose height fits the tallest cell.
func (r *pdfRenderer) row(widths []float64, cells []string, align string) {
	lines := make([][]string, len(widths))
	maxLines := 1
	for i := range widths {
		txt := ""
		if i < len(cells) {
			txt = r.tr(cells[i])
		}
		lines[i] = r.split(txt, widths[i]-2)
		if len(lines[i]) == 0 {
			lines[i] = []string{""}
		}
		if len(lines[i]) > maxLines {
			maxLines = len(lines[i])
		}
	}
	height := float64(maxLines) * tableLineHeight

	_, pageH := r.pdf.GetPageSize()
	_, _, _, bottom := r.pdf.GetMargins()
	if r.pdf.GetY()+height > pageH-bottom {
		r.pdf.AddPage()
	}

	x, y := r.pdf.GetXY()
	for i, width := range widths {
		r.pdf.Rect(x, y, width, height, "D")
		for j, line := range lines[i] {
			r.pdf.SetXY(x, y+float64(j)*tableLineHeight)
			r.pdf.CellFormat(width, tableLineHeight, line, "", 0, align, false, 0, "")
		}
		x += width
	}
	left, _, _, _ := r.pdf.GetMargins()
	r.pdf.SetXY(left, y+height)
}

// split wraps cell text. Core fonts hold translated single-byte text, so
// they are measured per byte.
func (r *pdfRenderer) split(txt string, width float64) []string {
	if r.utf8 {
		return r.pdf.SplitText(txt, width)
	}
	var lines []string
	for _, line := range r.pdf.SplitLines([]byte(txt), width) {
		lines = append(lines, string(line))
	}
	return lines
}

func columnWidths(cols []Column, total float64) []float64 {
	sum := 0.0
	for _, col := range cols {
		if col.Width > 0 {
			sum += col.Width
		} else {
			sum++
		}
	}
	widths := make([]float64, len(cols))
	for i, col := range cols {
		weight := col.Width
		if weight <= 0 {
			weight = 1
		}
		widths[i] = total * weight / sum
	}
	return widths
}

func alignCode(a Align) string {
	switch a {
	case AlignCenter:
		return "C"
	case AlignRight:
		return "R"
	default:
		return "L"
	}
}

// firstUnencodable finds a rune the cp1252 translator would replace with '.'.
func firstUnencodable(doc Document, tr func(string) string) (rune, bool) {
	check := func(s string) (rune, bool) {
		for _, r := range s {
			if r > 0x7f && tr(string(r)) == "." {
				return r, true
			}
		}
		return 0, false
	}
	for _, block := range doc.Blocks() {
		if r, ok := check(block.Text); ok {
			return r, true
		}
		if block.Table == nil {
			continue
		}
		for _, col := range block.Table.Columns {
			if r, ok := check(col.Title); ok {
				return r, true
			}
		}
		for _, row := range block.Table.Rows {
			for _, cell := range row.Cells {
				if r, ok := check(cell); ok {
					return r, true
				}
			}
		}
	}
	return 0, false
}
