package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

const (
	nsWord         = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsDrawing      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPresentation = "http://schemas.openxmlformats.org/presentationml/2006/main"

	// maxPartBytes guards against zip bombs in a single archive member.
	maxPartBytes = 100 << 20
)

var errLegacyOffice = errors.New("not an Office Open XML file (legacy .doc/.ppt binaries are not supported)")

func openOOXML(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errLegacyOffice
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxPartBytes+1))
		if err != nil {
			return nil, err
		}
		if len(data) > maxPartBytes {
			return nil, fmt.Errorf("%s exceeds %d bytes", name, maxPartBytes)
		}
		return data, nil
	}
	return nil, fmt.Errorf("missing %s", name)
}

// tableBuilder collects rows of cells; nested tables are flattened into
// the enclosing cell.
type tableBuilder struct {
	rows  []string
	cells []string
	cell  []string
}

func (t *tableBuilder) startRow()             { t.cells = nil }
func (t *tableBuilder) startCell()            { t.cell = nil }
func (t *tableBuilder) addParagraph(p string) { t.cell = append(t.cell, p) }
func (t *tableBuilder) endCell() {
	t.cells = append(t.cells, strings.TrimSpace(strings.Join(t.cell, "\n")))
}
func (t *tableBuilder) endRow() { t.rows = append(t.rows, strings.Join(t.cells, " | ")) }

// decodeDOCX renders body paragraphs, then every top-level table.
func decodeDOCX(data []byte) (string, error) {
	zr, err := openOOXML(data)
	if err != nil {
		return "", err
	}
	doc, err := readPart(zr, "word/document.xml")
	if err != nil {
		return "", err
	}

	var (
		paragraphs []string
		tables     [][]string
		table      *tableBuilder
		tblDepth   int
		para       strings.Builder
		inText     bool
	)

	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space != nsWord {
				continue
			}
			switch el.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					table = &tableBuilder{}
				}
			case "tr":
				if tblDepth == 1 {
					table.startRow()
				}
			case "tc":
				if tblDepth == 1 {
					table.startCell()
				}
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if el.Name.Space != nsWord {
				continue
			}
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if tblDepth > 0 {
					table.addParagraph(text)
				} else if text != "" {
					paragraphs = append(paragraphs, text)
				}
			case "tc":
				if tblDepth == 1 {
					table.endCell()
				}
			case "tr":
				if tblDepth == 1 {
					table.endRow()
				}
			case "tbl":
				if tblDepth == 1 {
					tables = append(tables, table.rows)
					table = nil
				}
				tblDepth--
			}
		case xml.CharData:
			if inText {
				para.Write(el)
			}
		}
	}

	parts := []string{"=== DOCUMENT CONTENT ==="}
	parts = append(parts, paragraphs...)
	if len(tables) > 0 {
		parts = append(parts, "\n=== TABLES ===")
		for i, rows := range tables {
			parts = append(parts, fmt.Sprintf("\n--- TABLE %d ---", i+1))
			parts = append(parts, rows...)
		}
	}
	return strings.Join(parts, "\n"), nil
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type presentation struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

// slideOrder returns slide part names in presentation order, falling back
// to numeric file order when presentation.xml cannot be resolved.
func slideOrder(zr *zip.Reader) []string {
	var ordered []string
	presXML, err1 := readPart(zr, "ppt/presentation.xml")
	relsXML, err2 := readPart(zr, "ppt/_rels/presentation.xml.rels")
	if err1 == nil && err2 == nil {
		var pres presentation
		var rels relationships
		if xml.Unmarshal(presXML, &pres) == nil && xml.Unmarshal(relsXML, &rels) == nil {
			targets := make(map[string]string, len(rels.Items))
			for _, r := range rels.Items {
				targets[r.ID] = r.Target
			}
			for _, s := range pres.SlideIDs {
				if target, ok := targets[s.RID]; ok {
					name := strings.TrimPrefix(target, "/")
					if !strings.HasPrefix(name, "ppt/") {
						name = path.Clean(path.Join("ppt", target))
					}
					ordered = append(ordered, name)
				}
			}
		}
	}
	if len(ordered) > 0 {
		return ordered
	}

	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			ordered = append(ordered, f.Name)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return slideNumber(ordered[i]) < slideNumber(ordered[j]) })
	return ordered
}

func slideNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), ".xml")
	n, _ := strconv.Atoi(strings.TrimPrefix(base, "slide"))
	return n
}

// decodePPTX renders each slide's shape text and tables in document order.
func decodePPTX(data []byte) (string, error) {
	zr, err := openOOXML(data)
	if err != nil {
		return "", err
	}
	slides := slideOrder(zr)
	if len(slides) == 0 {
		return "", errors.New("presentation has no slides")
	}

	parts := []string{"=== POWERPOINT PRESENTATION ==="}
	for i, name := range slides {
		parts = append(parts, fmt.Sprintf("\n--- SLIDE %d ---", i+1))
		slideXML, err := readPart(zr, name)
		if err != nil {
			return "", err
		}
		items, err := slideItems(slideXML)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", name, err)
		}
		parts = append(parts, items...)
	}
	return strings.Join(parts, "\n"), nil
}

func slideItems(slideXML []byte) ([]string, error) {
	var (
		items     []string
		shape     []string
		shapeDeep int
		table     *tableBuilder
		inCell    bool
		para      strings.Builder
		inText    bool
	)

	dec := xml.NewDecoder(bytes.NewReader(slideXML))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Space == nsPresentation && el.Name.Local == "sp":
				shapeDeep++
				if shapeDeep == 1 {
					shape = nil
				}
			case el.Name.Space != nsDrawing:
			case el.Name.Local == "tbl":
				table = &tableBuilder{}
			case el.Name.Local == "tr" && table != nil:
				table.startRow()
			case el.Name.Local == "tc" && table != nil:
				table.startCell()
				inCell = true
			case el.Name.Local == "p":
				para.Reset()
			case el.Name.Local == "t":
				inText = true
			case el.Name.Local == "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch {
			case el.Name.Space == nsPresentation && el.Name.Local == "sp":
				shapeDeep--
				if shapeDeep == 0 {
					if text := strings.TrimSpace(strings.Join(shape, "\n")); text != "" {
						items = append(items, text)
					}
				}
			case el.Name.Space != nsDrawing:
			case el.Name.Local == "t":
				inText = false
			case el.Name.Local == "p":
				text := strings.TrimSpace(para.String())
				if inCell {
					table.addParagraph(text)
				} else if shapeDeep > 0 {
					shape = append(shape, text)
				}
			case el.Name.Local == "tc" && table != nil:
				table.endCell()
				inCell = false
			case el.Name.Local == "tr" && table != nil:
				table.endRow()
			case el.Name.Local == "tbl" && table != nil:
				items = append(items, "\nTable:")
				items = append(items, table.rows...)
				table = nil
			}
		case xml.CharData:
			if inText {
				para.Write(el)
			}
		}
	}
	return items, nil
}
