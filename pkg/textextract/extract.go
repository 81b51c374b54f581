package textextract

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
	Tables []Table
}

// Table is a run of page rows laid out in two or more columns.
type Table [][]string

const (
	// cellGap is the horizontal whitespace, in points, that separates two
	// cells of the same line.
	cellGap = 12.0
	// lineTolerance is the baseline drift, in points, still read as one line.
	lineTolerance = 2.0
	// glyphEm is the advance assumed for glyphs whose font has no width
	// metrics, as a fraction of the font size.
	glyphEm = 0.5
	// maxCellWords bounds the cells of an unruled table. Longer cells are
	// read as columns of prose.
	maxCellWords = 4
)

// ExtractPDF reads every page of a PDF. Any structural error, including a
// panic inside the PDF reader, fails the whole document.
func ExtractPDF(data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("read PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	numPages := reader.NumPage()
	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}

		pages = append(pages, Page{Number: i, Text: text, Tables: pageTables(p)})
	}
	return pages, nil
}

// pageTables lays out the positioned glyphs of a page. A layout failure
// only drops the tables; the page text is kept.
func pageTables(p pdf.Page) (tables []Table) {
	defer func() {
		if r := recover(); r != nil {
			tables = nil
		}
	}()

	content := p.Content()
	return detectTables(layoutLines(placeGlyphs(content.Text)), content.Rect)
}

type glyph struct {
	x, y, w, size float64
	s             string
}

type line struct {
	y      float64
	glyphs []glyph
}

type cell struct {
	text   string
	x0, x1 float64
}

// placeGlyphs estimates the extent of each glyph. Fonts without width
// metrics report W as 0 and never advance the text matrix, so successive
// glyphs of one string share an origin; those are laid end to end.
func placeGlyphs(texts []pdf.Text) []glyph {
	glyphs := make([]glyph, 0, len(texts))
	for i, t := range texts {
		g := glyph{x: t.X, y: t.Y, w: t.W, size: t.FontSize, s: t.S}
		if g.w <= 0 {
			g.w = t.FontSize * glyphEm
		}
		if i > 0 {
			prev := texts[i-1]
			if prev.W <= 0 && prev.X == t.X && prev.Y == t.Y {
				last := glyphs[i-1]
				g.x = last.x + last.w
			}
		}
		glyphs = append(glyphs, g)
	}
	return glyphs
}

// layoutLines groups glyphs by baseline, top of the page first, each line
// ordered left to right.
func layoutLines(glyphs []glyph) []line {
	sorted := make([]glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var lines []line
	for _, g := range sorted {
		if n := len(lines); n > 0 && math.Abs(lines[n-1].y-g.y) <= lineTolerance {
			lines[n-1].glyphs = append(lines[n-1].glyphs, g)
			continue
		}
		lines = append(lines, line{y: g.y, glyphs: []glyph{g}})
	}
	for _, ln := range lines {
		sort.SliceStable(ln.glyphs, func(i, j int) bool { return ln.glyphs[i].x < ln.glyphs[j].x })
	}
	return lines
}

// splitCells cuts a line wherever the whitespace between two glyphs is
// wider than cellGap. Smaller gaps between glyphs become word spaces.
func splitCells(glyphs []glyph) []cell {
	var (
		cells []cell
		sb    strings.Builder
		cur   cell
	)
	flush := func() {
		if text := strings.Join(strings.Fields(sb.String()), " "); text != "" {
			cur.text = text
			cells = append(cells, cur)
		}
		sb.Reset()
	}

	for i, g := range glyphs {
		switch gap := g.x - cur.x1; {
		case i == 0:
			cur = cell{x0: g.x}
		case gap > cellGap:
			flush()
			cur = cell{x0: g.x}
		case gap > g.size*0.15:
			sb.WriteByte(' ')
		}
		sb.WriteString(g.s)
		cur.x1 = max(cur.x1, g.x+g.w)
	}
	if len(glyphs) > 0 {
		flush()
	}
	return cells
}

// detectTables groups consecutive multi-column lines into tables. A line
// counts when it sits on a ruled row or when every cell is short.
func detectTables(lines []line, rects []pdf.Rect) []Table {
	var tables []Table
	var current Table

	flushTable := func() {
		if len(current) >= 2 {
			tables = append(tables, current)
		}
		current = nil
	}

	for _, ln := range lines {
		cells := splitCells(ln.glyphs)
		if len(cells) < 2 || !(ruled(ln, cells, rects) || shortCells(cells)) {
			flushTable()
			continue
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = c.text
		}
		current = append(current, row)
	}
	flushTable()
	return tables
}

// ruled reports whether a cell box or rule of at most a few lines' height
// runs alongside the line.
func ruled(ln line, cells []cell, rects []pdf.Rect) bool {
	size := ln.glyphs[0].size
	x0, x1 := cells[0].x0, cells[len(cells)-1].x1
	for _, r := range rects {
		minX, maxX := math.Min(r.Min.X, r.Max.X), math.Max(r.Min.X, r.Max.X)
		minY, maxY := math.Min(r.Min.Y, r.Max.Y), math.Max(r.Min.Y, r.Max.Y)
		if maxY-minY > 3*size || maxX < x0 || minX > x1 {
			continue
		}
		if maxY >= ln.y-size && minY <= ln.y+1.5*size {
			return true
		}
	}
	return false
}

func shortCells(cells []cell) bool {
	for _, c := range cells {
		if len(strings.Fields(c.text)) > maxCellWords {
			return false
		}
	}
	return true
}

// Rows renders a table as pipe-delimited lines.
func (t Table) Rows() []string {
	out := make([]string, 0, len(t))
	for _, row := range t {
		out = append(out, strings.Join(row, " | "))
	}
	return out
}

// WithTables returns the page text followed by one line per table row.
func (p Page) WithTables() string {
	var sb strings.Builder
	sb.WriteString(p.Text)
	for _, t := range p.Tables {
		for _, line := range t.Rows() {
			sb.WriteString("\n")
			sb.WriteString(line)
		}
	}
	return sb.String()
}
