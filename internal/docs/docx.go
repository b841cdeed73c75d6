package docs

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const docxBody = "word/document.xml"

func extractDocx(path string) (Result, error) {
	res := Result{Method: "docx-xml"}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return res, fmt.Errorf("%w: open docx: %v", ErrDecode, err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return res, fmt.Errorf("%w: %s missing", ErrDecode, docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return res, fmt.Errorf("%w: open %s: %v", ErrDecode, docxBody, err)
	}
	defer rc.Close()

	paras, rows, err := walkDocument(rc)
	if err != nil {
		return res, fmt.Errorf("%w: parse %s: %v", ErrDecode, docxBody, err)
	}

	lines := make([]string, 0, len(paras)+len(rows))
	lines = append(lines, paras...)
	lines = append(lines, rows...)
	res.Text = strings.Join(lines, "\n")
	return res, nil
}

// walkDocument streams WordprocessingML and returns the non-blank body
// paragraphs and the non-blank rows of top-level tables, each in document
// order. Nested tables and text boxes are skipped.
func walkDocument(r io.Reader) (paras, rows []string, err error) {
	dec := xml.NewDecoder(r)

	var (
		tblDepth  int
		skipDepth int // inside w:txbxContent
		inRun     bool
		inText    bool
		inPara    bool
		para      strings.Builder
		cellParas []string
		cells     []string
		span      int
		col       int
		vMerged   bool
		// text of the top cell of each vertical merge, by grid column
		mergeTop map[int]string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paras, rows, nil
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if skipDepth > 0 {
				if t.Name.Local == "txbxContent" {
					skipDepth++
				}
				continue
			}
			switch t.Name.Local {
			case "txbxContent":
				skipDepth = 1
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					mergeTop = map[int]string{}
				}
			case "tr":
				if tblDepth == 1 {
					col = 0
				}
			case "tc":
				if tblDepth == 1 {
					cellParas = cellParas[:0]
					span = 1
					vMerged = false
				}
			case "vMerge":
				if tblDepth == 1 {
					switch attr(t, "val") {
					case "", "continue":
						vMerged = true
					}
				}
			case "gridSpan":
				if tblDepth == 1 {
					if n, err := strconv.Atoi(attr(t, "val")); err == nil && n > 1 {
						span = n
					}
				}
			case "p":
				if tblDepth <= 1 {
					inPara = true
					para.Reset()
				}
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				if inPara && inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inPara && inRun {
					para.WriteByte('\n')
				}
			}

		case xml.CharData:
			if skipDepth == 0 && inPara && inText {
				para.Write(t)
			}

		case xml.EndElement:
			if skipDepth > 0 {
				if t.Name.Local == "txbxContent" {
					skipDepth--
				}
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				inRun = false
			case "p":
				if !inPara {
					continue
				}
				inPara = false
				text := para.String()
				if tblDepth == 0 {
					if strings.TrimSpace(text) != "" {
						paras = append(paras, text)
					}
				} else {
					cellParas = append(cellParas, text)
				}
			case "tc":
				if tblDepth == 1 {
					cell := strings.TrimSpace(strings.Join(cellParas, "\n"))
					// A vertical merge continuation repeats the cell it hangs from.
					if vMerged {
						cell = mergeTop[col]
					} else {
						mergeTop[col] = cell
					}
					// A horizontally merged cell occupies every grid column it spans.
					for i := 0; i < span; i++ {
						cells = append(cells, cell)
					}
					col += span
				}
			case "tr":
				if tblDepth == 1 {
					row := strings.Join(cells, " | ")
					if strings.TrimSpace(row) != "" {
						rows = append(rows, row)
					}
					cells = cells[:0]
				}
			case "tbl":
				tblDepth--
			}
		}
	}
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
