package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for logo sizing
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	docxContentWidth = 9638   // A4 width minus 2cm margins, in twips
	logoHeightEMU    = 504000 // 14mm in English Metric Units
)

// DOCXOptions configures the DOCX renderer.
type DOCXOptions struct {
	// FontFamily is applied to both latin and east-asian runs when set.
	FontFamily string
}

// DOCXExporter renders documents to WordprocessingML packages.
type DOCXExporter struct {
	opts DOCXOptions
}

// NewDOCXExporter constructs a DOCX exporter.
func NewDOCXExporter(opts DOCXOptions) *DOCXExporter {
	return &DOCXExporter{opts: opts}
}

// Extension implements Renderer.
func (e *DOCXExporter) Extension() string { return "docx" }

type docxImage struct {
	relID  string
	target string
	path   string
	width  int64
	height int64
}

// Render writes the document as a .docx package.
func (e *DOCXExporter) Render(w io.Writer, doc Document) error {
	var images []docxImage
	for _, block := range doc.Blocks() {
		if block.Kind != BlockImages {
			continue
		}
		for _, path := range block.Images {
			img, err := loadDocxImage(path, len(images)+1)
			if err != nil {
				return err
			}
			images = append(images, img)
		}
	}

	b := &docxBuilder{font: e.opts.FontFamily, images: images}
	for _, block := range doc.Header.Blocks {
		b.block(block)
	}
	for _, section := range doc.Body {
		for _, block := range section.Blocks {
			b.block(block)
		}
	}
	footer := &docxBuilder{font: e.opts.FontFamily}
	for _, block := range doc.Footer.Blocks {
		footer.block(block)
	}

	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", rootRelsXML},
		{"word/_rels/document.xml.rels", documentRels(images)},
		{"word/document.xml", documentXML(b.buf.String())},
		{"word/footer1.xml", footerXML(footer.buf.String())},
	}
	for _, part := range parts {
		fw, err := zw.Create(part.name)
		if err != nil {
			return fmt.Errorf("docx part %s: %w", part.name, err)
		}
		if _, err := io.WriteString(fw, part.body); err != nil {
			return fmt.Errorf("docx part %s: %w", part.name, err)
		}
	}
	for _, img := range images {
		if err := copyDocxMedia(zw, img); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize docx: %w", err)
	}
	return nil
}

func loadDocxImage(path string, n int) (docxImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return docxImage{}, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return docxImage{}, fmt.Errorf("decode image %s: %w", path, err)
	}
	if cfg.Height == 0 {
		return docxImage{}, fmt.Errorf("image %s has zero height", path)
	}
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	return docxImage{
		relID:  "rIdImg" + strconv.Itoa(n),
		target: fmt.Sprintf("media/image%d.%s", n, ext),
		path:   path,
		width:  int64(logoHeightEMU) * int64(cfg.Width) / int64(cfg.Height),
		height: logoHeightEMU,
	}, nil
}

func copyDocxMedia(zw *zip.Writer, img docxImage) error {
	src, err := os.Open(img.path)
	if err != nil {
		return fmt.Errorf("open image %s: %w", img.path, err)
	}
	defer src.Close() //nolint:errcheck

	dst, err := zw.Create("word/" + img.target)
	if err != nil {
		return fmt.Errorf("docx media %s: %w", img.target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("docx media %s: %w", img.target, err)
	}
	return nil
}

type docxBuilder struct {
	buf      bytes.Buffer
	font     string
	images   []docxImage
	imageIdx int
}

func (b *docxBuilder) block(block Block) {
	switch block.Kind {
	case BlockText:
		b.paragraph(block.Text, block.Style, "")
	case BlockRule:
		b.buf.WriteString(`<w:p><w:pPr><w:pBdr><w:bottom w:val="single" w:sz="6" w:space="1" w:color="auto"/></w:pBdr></w:pPr></w:p>`)
	case BlockTable:
		if block.Table != nil {
			b.table(block.Table)
		}
	case BlockImages:
		b.buf.WriteString(`<w:p>`)
		for range block.Images {
			if b.imageIdx >= len(b.images) {
				break
			}
			b.drawing(b.images[b.imageIdx], b.imageIdx+1)
			b.imageIdx++
		}
		b.buf.WriteString(`</w:p>`)
	}
}

func (b *docxBuilder) paragraph(txt string, style TextStyle, jcOverride string) {
	b.buf.WriteString(`<w:p>`)
	jc := jcOverride
	if jc == "" {
		jc = string(style.Align)
	}
	if jc != "" {
		fmt.Fprintf(&b.buf, `<w:pPr><w:jc w:val="%s"/></w:pPr>`, jc)
	}
	b.buf.WriteString(`<w:r>`)
	b.runProps(style)
	for i, line := range strings.Split(txt, "\n") {
		if i > 0 {
			b.buf.WriteString(`<w:br/>`)
		}
		b.buf.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(&b.buf, []byte(line))
		b.buf.WriteString(`</w:t>`)
	}
	b.buf.WriteString(`</w:r></w:p>`)
}

func (b *docxBuilder) runProps(style TextStyle) {
	var props strings.Builder
	if b.font != "" {
		fmt.Fprintf(&props, `<w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:eastAsia="%[1]s"/>`, escapeAttr(b.font))
	}
	if style.Bold {
		props.WriteString(`<w:b/>`)
	}
	if style.Muted {
		props.WriteString(`<w:color w:val="6E6E6E"/>`)
	}
	if style.Size > 0 {
		fmt.Fprintf(&props, `<w:sz w:val="%d"/>`, int(style.Size*2))
	}
	if props.Len() > 0 {
		b.buf.WriteString(`<w:rPr>` + props.String() + `</w:rPr>`)
	}
}

func (b *docxBuilder) table(t *Table) {
	if len(t.Columns) == 0 {
		return
	}
	widths := columnWidths(t.Columns, docxContentWidth)
	b.buf.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="5000" w:type="pct"/><w:tblBorders>`)
	for _, edge := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		fmt.Fprintf(&b.buf, `<w:%s w:val="single" w:sz="4" w:space="0" w:color="auto"/>`, edge)
	}
	b.buf.WriteString(`</w:tblBorders></w:tblPr><w:tblGrid>`)
	for _, width := range widths {
		fmt.Fprintf(&b.buf, `<w:gridCol w:w="%d"/>`, int(width))
	}
	b.buf.WriteString(`</w:tblGrid>`)

	header := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Title
	}
	b.tableRow(widths, header, TextStyle{Bold: true}, "center")
	for _, row := range t.Rows {
		jc := ""
		if row.Placeholder {
			jc = "center"
		}
		b.tableRow(widths, row.Cells, TextStyle{}, jc)
	}
	b.buf.WriteString(`</w:tbl><w:p/>`)
}

func (b *docxBuilder) tableRow(widths []float64, cells []string, style TextStyle, jc string) {
	b.buf.WriteString(`<w:tr>`)
	for i, width := range widths {
		fmt.Fprintf(&b.buf, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr>`, int(width))
		txt := ""
		if i < len(cells) {
			txt = cells[i]
		}
		b.paragraph(txt, style, jc)
		b.buf.WriteString(`</w:tc>`)
	}
	b.buf.WriteString(`</w:tr>`)
}

func (b *docxBuilder) drawing(img docxImage, id int) {
	name := escapeAttr(filepath.Base(img.path))
	fmt.Fprintf(&b.buf, `<w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%[1]d" cy="%[2]d"/><wp:docPr id="%[3]d" name="%[4]s"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%[3]d" name="%[4]s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%[5]s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[1]d" cy="%[2]d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr></pic:pic>`+
		`</a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		img.width, img.height, id, name, img.relID)
	b.buf.WriteString(`<w:r><w:t xml:space="preserve">  </w:t></w:r>`)
}

func escapeAttr(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

const (
	wordNamespaces = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
		`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"`

	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Default Extension="png" ContentType="image/png"/>` +
		`<Default Extension="jpg" ContentType="image/jpeg"/>` +
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
		`<Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>` +
		`</Types>`

	rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
		`</Relationships>`
)

func documentRels(images []docxImage) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rIdFooter1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="footer1.xml"/>`)
	for _, img := range images {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="%s"/>`, img.relID, img.target)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func documentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wordNamespaces + `><w:body>` + body +
		`<w:sectPr><w:footerReference w:type="default" r:id="rIdFooter1"/>` +
		`<w:pgSz w:w="11906" w:h="16838"/>` +
		`<w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134" w:header="567" w:footer="567" w:gutter="0"/>` +
		`</w:sectPr></w:body></w:document>`
}

func footerXML(body string) string {
	if body == "" {
		body = `<w:p/>`
	}
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:ftr ` + wordNamespaces + `>` + body + `</w:ftr>`
}
