package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	partContentTypes = "[Content_Types].xml"
	partDocument     = "word/document.xml"
	partDocumentRels = "word/_rels/document.xml.rels"

	relTypeImage = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	emuPerInch = 914400
)

// element 是 <w:body> 下的一个顶层元素（段落或表格），保留原始 XML。
type element struct {
	raw   string
	style string
	text  string
}

type relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

type relationships struct {
	XMLName xml.Name       `xml:"Relationships"`
	Xmlns   string         `xml:"xmlns,attr"`
	Rels    []relationship `xml:"Relationship"`
}

// Document 一个最小的 .docx 读写实现：新建时生成全部部件，
// 打开已有文件时保留未改动的部件，只重写正文与关系。
type Document struct {
	parts    map[string][]byte
	head     string
	tail     string
	body     []element
	rels     []relationship
	drawings int
}

// HeadingEntry 文档中的一个标题。
type HeadingEntry struct {
	Text  string
	Level int
}

// NewDocument 创建带样式、编号和设置部件的空文档。
func NewDocument(title, creator string) *Document {
	d := &Document{
		parts: map[string][]byte{
			partContentTypes:     []byte(contentTypesXML),
			"_rels/.rels":        []byte(packageRelsXML),
			"word/styles.xml":    []byte(stylesXML),
			"word/settings.xml":  []byte(settingsXML),
			"word/numbering.xml": []byte(numberingXML),
			"docProps/core.xml":  []byte(coreXML(title, creator, time.Now().UTC())),
			"docProps/app.xml":   []byte(appXML),
		},
		head: xml.Header + `<w:document xmlns:w="` + nsW + `" xmlns:r="` + nsR + `"><w:body>`,
		tail: sectPrXML + `</w:body></w:document>`,
		rels: []relationship{
			{ID: "rId1", Type: nsRel + "/styles", Target: "styles.xml"},
			{ID: "rId2", Type: nsRel + "/settings", Target: "settings.xml"},
			{ID: "rId3", Type: nsRel + "/numbering", Target: "numbering.xml"},
		},
	}
	return d
}

// Open 读取已有 .docx。
func Open(path string) (*Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	d := &Document{parts: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", f.Name, err)
		}
		d.parts[f.Name] = b
	}

	docXML, ok := d.parts[partDocument]
	if !ok {
		return nil, fmt.Errorf("%s: missing %s", path, partDocument)
	}
	if err := d.splitBody(docXML); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if relsXML, ok := d.parts[partDocumentRels]; ok {
		var rs relationships
		if err := xml.Unmarshal(relsXML, &rs); err != nil {
			return nil, fmt.Errorf("%s: parse relationships: %w", path, err)
		}
		d.rels = rs.Rels
	}
	return d, nil
}

// splitBody 把 document.xml 拆成 body 之前、body 子元素、sectPr 及结尾。
func (d *Document) splitBody(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	depth, bodyDepth := 0, -1
	childStart, bodyOpen := int64(0), int64(-1)
	childName := ""
	sectPr := ""

	for {
		off := dec.InputOffset()
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if bodyDepth < 0 && t.Name.Local == "body" {
				bodyDepth = depth
				bodyOpen = dec.InputOffset()
			} else if bodyDepth >= 0 && depth == bodyDepth+1 {
				childStart, childName = off, t.Name.Local
			}
			depth++
		case xml.EndElement:
			depth--
			switch {
			case bodyDepth >= 0 && depth == bodyDepth+1:
				raw := string(data[childStart:dec.InputOffset()])
				if childName == "sectPr" {
					sectPr = raw
				} else {
					d.body = append(d.body, describe(raw))
				}
			case bodyDepth >= 0 && depth == bodyDepth && t.Name.Local == "body":
				d.head = string(data[:bodyOpen])
				d.tail = sectPr + string(data[off:])
				d.drawings = strings.Count(string(data), "<wp:docPr")
				return nil
			}
		}
	}
	return errors.New("document.xml has no body")
}

type xmlParagraph struct {
	Style struct {
		Val string `xml:"val,attr"`
	} `xml:"pPr>pStyle"`
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

func describe(raw string) element {
	e := element{raw: raw}
	var p xmlParagraph
	if err := xml.Unmarshal([]byte(raw), &p); err == nil {
		e.style = p.Style.Val
		var sb strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				sb.WriteString(t)
			}
		}
		e.text = sb.String()
	}
	return e
}

var headingStyleRe = regexp.MustCompile(`^(?i)heading\s?([1-9])$`)

// Headings 按文档顺序返回所有标题。
func (d *Document) Headings() []HeadingEntry {
	var out []HeadingEntry
	for _, e := range d.body {
		if m := headingStyleRe.FindStringSubmatch(e.style); m != nil {
			lvl, _ := strconv.Atoi(m[1])
			out = append(out, HeadingEntry{Text: e.text, Level: lvl})
		}
	}
	return out
}

// HasHeading 精确匹配标题文本。
func (d *Document) HasHeading(text string) bool {
	for _, h := range d.Headings() {
		if h.Text == text {
			return true
		}
	}
	return false
}

// Paragraphs 返回每个顶层段落的纯文本。
func (d *Document) Paragraphs() []string {
	out := make([]string, 0, len(d.body))
	for _, e := range d.body {
		out = append(out, e.text)
	}
	return out
}

// ParaFormat 段落级格式。
type ParaFormat struct {
	Style  string
	Center bool
	Bold   bool
	Font   string
	SizePt int
	Bullet bool
}

// AddParagraph 追加一个段落；Run 中的换行转为 <w:br/>。
func (d *Document) AddParagraph(runs []Run, f ParaFormat) {
	var sb strings.Builder
	sb.WriteString("<w:p>")
	writePPr(&sb, f)
	var text strings.Builder
	for _, r := range runs {
		writeRun(&sb, r, f)
		text.WriteString(r.Text)
	}
	sb.WriteString("</w:p>")
	d.body = append(d.body, element{
		raw:   sb.String(),
		style: f.Style,
		text:  strings.ReplaceAll(text.String(), "\n", ""),
	})
}

// AddText 以单一格式追加纯文本段落。
func (d *Document) AddText(text string, f ParaFormat) {
	var runs []Run
	if text != "" {
		runs = []Run{{Text: text}}
	}
	d.AddParagraph(runs, f)
}

// AddHeading 追加 Heading1/Heading2... 样式的标题。
func (d *Document) AddHeading(text string, level int) {
	level = max(1, min(level, 9))
	d.AddText(text, ParaFormat{Style: "Heading" + strconv.Itoa(level)})
}

func (d *Document) AddPageBreak() {
	d.body = append(d.body, element{raw: `<w:p><w:r><w:br w:type="page"/></w:r></w:p>`})
}

// AddTOC 追加目录域，打开文档时由查看器更新。
func (d *Document) AddTOC() {
	d.body = append(d.body, element{raw: tocXML, text: tocHint})
}

// AddImage 以固定宽度（英寸）嵌入 PNG，高度按原图比例计算。
func (d *Document) AddImage(path string, widthInches float64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image %s: %w", path, err)
	}
	if format != "png" || cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("unsupported image %s (%s %dx%d)", path, format, cfg.Width, cfg.Height)
	}

	d.drawings++
	n := d.drawings
	target := fmt.Sprintf("media/image%d.png", n)
	for d.parts["word/"+target] != nil {
		n++
		target = fmt.Sprintf("media/image%d.png", n)
	}
	d.parts["word/"+target] = data
	relID := d.nextRelID()
	d.rels = append(d.rels, relationship{ID: relID, Type: relTypeImage, Target: target})

	cx := int64(widthInches * emuPerInch)
	cy := cx * int64(cfg.Height) / int64(cfg.Width)
	raw := fmt.Sprintf(drawingXML, cx, cy, d.drawings, d.drawings, xmlEscape(filepath.Base(path)), relID, cx, cy)
	d.body = append(d.body, element{raw: raw})
	return nil
}

func (d *Document) nextRelID() string {
	maxID := 0
	for _, r := range d.rels {
		if n, err := strconv.Atoi(strings.TrimPrefix(r.ID, "rId")); err == nil && n > maxID {
			maxID = n
		}
	}
	return "rId" + strconv.Itoa(maxID+1)
}

// Save 原子写入：先写同目录临时文件再 rename。
func (d *Document) Save(path string) error {
	var sb strings.Builder
	sb.WriteString(d.head)
	for _, e := range d.body {
		sb.WriteString(e.raw)
	}
	sb.WriteString(d.tail)
	d.parts[partDocument] = []byte(sb.String())

	rels, err := xml.Marshal(relationships{Xmlns: nsPkgRel, Rels: d.rels})
	if err != nil {
		return fmt.Errorf("marshal relationships: %w", err)
	}
	d.parts[partDocumentRels] = append([]byte(xml.Header), rels...)
	d.ensurePNGContentType()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".srs-*.docx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := d.writeZip(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func (d *Document) writeZip(w io.Writer) error {
	names := make([]string, 0, len(d.parts))
	for name := range d.parts {
		if name != partContentTypes {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	names = append([]string{partContentTypes}, names...)

	zw := zip.NewWriter(w)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := fw.Write(d.parts[name]); err != nil {
			return fmt.Errorf("zip %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

func (d *Document) ensurePNGContentType() {
	ct := string(d.parts[partContentTypes])
	if strings.Contains(ct, `Extension="png"`) {
		return
	}
	if i := strings.Index(ct, "<Types"); i >= 0 {
		if j := strings.Index(ct[i:], ">"); j >= 0 {
			at := i + j + 1
			ct = ct[:at] + `<Default Extension="png" ContentType="image/png"/>` + ct[at:]
			d.parts[partContentTypes] = []byte(ct)
		}
	}
}

func writePPr(sb *strings.Builder, f ParaFormat) {
	if f.Style == "" && !f.Center && !f.Bullet {
		return
	}
	sb.WriteString("<w:pPr>")
	if f.Style != "" {
		fmt.Fprintf(sb, `<w:pStyle w:val="%s"/>`, xmlEscape(f.Style))
	}
	if f.Bullet {
		sb.WriteString(`<w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr>`)
	}
	if f.Center {
		sb.WriteString(`<w:jc w:val="center"/>`)
	}
	sb.WriteString("</w:pPr>")
}

func writeRun(sb *strings.Builder, r Run, f ParaFormat) {
	sb.WriteString("<w:r>")
	bold := r.Bold || f.Bold
	if bold || f.Font != "" || f.SizePt > 0 {
		sb.WriteString("<w:rPr>")
		if f.Font != "" {
			font := xmlEscape(f.Font)
			fmt.Fprintf(sb, `<w:rFonts w:ascii="%s" w:hAnsi="%s" w:cs="%s"/>`, font, font, font)
		}
		if bold {
			sb.WriteString("<w:b/>")
		}
		if f.SizePt > 0 {
			fmt.Fprintf(sb, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, f.SizePt*2, f.SizePt*2)
		}
		sb.WriteString("</w:rPr>")
	}
	for i, line := range strings.Split(r.Text, "\n") {
		if i > 0 {
			sb.WriteString("<w:br/>")
		}
		if line != "" {
			sb.WriteString(`<w:t xml:space="preserve">`)
			sb.WriteString(xmlEscape(line))
			sb.WriteString("</w:t>")
		}
	}
	sb.WriteString("</w:r>")
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
