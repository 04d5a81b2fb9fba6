package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"strings"
)

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		case xml.StartElement:
			if t.Name.Local == "tab" {
				buf.WriteString("\t")
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

type xlsxSharedStrings struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type xlsxSheet struct {
	Rows []struct {
		Cells []struct {
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// extractXLSX renders every worksheet as tab separated rows.
func extractXLSX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var shared []string
	var sheets []*zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		switch {
		case name == "xl/sharedStrings.xml":
			var ss xlsxSharedStrings
			if err := decodeZipXML(f, &ss); err != nil {
				return "", err
			}
			for _, it := range ss.Items {
				if it.Text != "" {
					shared = append(shared, it.Text)
					continue
				}
				var sb strings.Builder
				for _, r := range it.Runs {
					sb.WriteString(r.Text)
				}
				shared = append(shared, sb.String())
			}
		case strings.HasPrefix(name, "xl/worksheets/") && strings.HasSuffix(name, ".xml"):
			sheets = append(sheets, f)
		}
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].Name < sheets[j].Name })

	var out strings.Builder
	for _, f := range sheets {
		var sheet xlsxSheet
		if err := decodeZipXML(f, &sheet); err != nil {
			return "", err
		}
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, c := range row.Cells {
				switch c.Type {
				case "s":
					idx, err := strconv.Atoi(strings.TrimSpace(c.Value))
					if err == nil && idx >= 0 && idx < len(shared) {
						cells = append(cells, shared[idx])
					} else {
						cells = append(cells, "")
					}
				case "inlineStr":
					cells = append(cells, c.Inline.Text)
				default:
					cells = append(cells, c.Value)
				}
			}
			line := strings.TrimRight(strings.Join(cells, "\t"), "\t")
			if line != "" {
				out.WriteString(line)
				out.WriteString("\n")
			}
		}
	}
	return out.String(), nil
}

func decodeZipXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}
