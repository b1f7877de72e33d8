package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/types"
)

const (
	MIMEPDF      = "application/pdf"
	MIMEDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText     = "text/plain"
	MIMEMarkdown = "text/markdown"
)

// DocumentExtractor turns raw file bytes into plain text.
type DocumentExtractor interface {
	Extract(ctx context.Context, raw []byte, mimeType, fileName string) (*types.ExtractedDocument, error)
}

// DocumentService extracts text from PDF, DOCX, markdown and plain text.
type DocumentService struct {
	logger     *zap.Logger
	pdftotext  string
	now        func() time.Time
	pageJoiner string
}

var _ DocumentExtractor = (*DocumentService)(nil)

// NewDocumentService looks up pdftotext once. When it is installed it is used
// for pages the pure Go reader returns nothing for.
func NewDocumentService(logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	path, _ := exec.LookPath("pdftotext")
	return &DocumentService{
		logger:     logger,
		pdftotext:  path,
		now:        time.Now,
		pageJoiner: "\n\n",
	}
}

// SupportedExtensions lists what upload endpoints accept.
var SupportedExtensions = map[string]string{
	".pdf":      MIMEPDF,
	".docx":     MIMEDOCX,
	".md":       MIMEMarkdown,
	".markdown": MIMEMarkdown,
	".txt":      MIMEText,
}

// DetectMIMEType normalizes the declared type and falls back to the file
// extension and then content sniffing.
func DetectMIMEType(raw []byte, declared, fileName string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			declared = strings.ToLower(mt)
		}
		if isSupportedMIME(declared) {
			return declared
		}
	}
	if mt, ok := SupportedExtensions[strings.ToLower(filepath.Ext(fileName))]; ok {
		return mt
	}
	detected := mimetype.Detect(raw)
	for m := detected; m != nil; m = m.Parent() {
		if mt, _, err := mime.ParseMediaType(m.String()); err == nil && isSupportedMIME(mt) {
			return mt
		}
	}
	if declared != "" {
		return declared
	}
	return detected.String()
}

func isSupportedMIME(mt string) bool {
	switch mt {
	case MIMEPDF, MIMEDOCX, MIMEText, MIMEMarkdown:
		return true
	}
	return false
}

func (s *DocumentService) Extract(ctx context.Context, raw []byte, mimeType, fileName string) (*types.ExtractedDocument, error) {
	mt := DetectMIMEType(raw, mimeType, fileName)
	meta := types.DocumentMetadata{
		FileName:    fileName,
		FileType:    mt,
		ProcessedAt: s.now(),
	}

	var (
		text string
		err  error
	)
	switch mt {
	case MIMEPDF:
		meta.Format = "pdf"
		text, err = s.extractPDF(ctx, raw, &meta)
	case MIMEDOCX:
		meta.Format = "docx"
		text, err = extractDOCX(raw, &meta)
	case MIMEMarkdown:
		meta.Format = "markdown"
		text, err = extractText(raw)
	case MIMEText:
		meta.Format = "text"
		text, err = extractText(raw)
	default:
		return nil, types.NewError("extract", types.ErrUnsupportedType, fmt.Errorf("%s (%s)", fileName, mt))
	}
	if err != nil {
		return nil, types.NewError("extract", types.ErrExtraction, fmt.Errorf("%s: %w", fileName, err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, types.NewError("extract", types.ErrExtraction, fmt.Errorf("%s: no text content", fileName))
	}

	s.logger.Debug("extracted document",
		zap.String("file", fileName),
		zap.String("type", mt),
		zap.Int("chars", utf8.RuneCountInString(text)),
	)
	return &types.ExtractedDocument{Text: text, Metadata: meta}, nil
}

// extractPDF reads each page and records where it starts in the text.
func (s *DocumentService) extractPDF(ctx context.Context, raw []byte, meta *types.DocumentMetadata) (text string, err error) {
	defer func() {
		// the pdf reader panics on some malformed files
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	info := &types.PDFInfo{PageCount: reader.NumPage()}
	trailerInfo := reader.Trailer().Key("Info")
	info.Author = trailerInfo.Key("Author").Text()
	info.CreationDate = trailerInfo.Key("CreationDate").Text()
	meta.PDF = info

	var (
		out    strings.Builder
		offset int
	)
	for pageNum := 1; pageNum <= info.PageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil || strings.TrimSpace(pageText) == "" {
			pageText = s.pdftotextPage(ctx, raw, pageNum)
		}
		pageText = cleanText(pageText)
		if pageText == "" {
			s.logger.Warn("no text on pdf page", zap.String("file", meta.FileName), zap.Int("page", pageNum))
			continue
		}

		if out.Len() > 0 {
			out.WriteString(s.pageJoiner)
			offset += utf8.RuneCountInString(s.pageJoiner)
		}
		meta.Pages = append(meta.Pages, types.PageSpan{Number: pageNum, Offset: offset})
		out.WriteString(pageText)
		offset += utf8.RuneCountInString(pageText)
	}
	return out.String(), nil
}

// pdftotextPage runs the poppler tool on a single page.
func (s *DocumentService) pdftotextPage(ctx context.Context, raw []byte, pageNumber int) string {
	if s.pdftotext == "" {
		return ""
	}
	tmp, err := os.CreateTemp("", "knowledge-*.pdf")
	if err != nil {
		return ""
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return ""
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, s.pdftotext,
		"-f", fmt.Sprint(pageNumber), "-l", fmt.Sprint(pageNumber),
		"-enc", "UTF-8", "-nopgbrk",
		tmp.Name(), "-")
	var txtOut bytes.Buffer
	cmd.Stdout = &txtOut
	if err := cmd.Run(); err != nil {
		s.logger.Warn("pdftotext failed", zap.Int("page", pageNumber), zap.Error(err))
		return ""
	}
	return txtOut.String()
}

func extractText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return cleanText(string(raw)), nil
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type coreXML struct {
	Title string `xml:"title"`
}

func extractDOCX(raw []byte, meta *types.DocumentMetadata) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	var text string
	found := false
	info := &types.DOCXInfo{}
	for _, file := range reader.File {
		switch file.Name {
		case "word/document.xml":
			content, err := readZipFile(file)
			if err != nil {
				return "", err
			}
			var doc documentXML
			if err := xml.Unmarshal(content, &doc); err != nil {
				return "", fmt.Errorf("failed to parse document.xml: %w", err)
			}
			paras := make([]string, 0, len(doc.Body.Paragraphs))
			for _, para := range doc.Body.Paragraphs {
				var b strings.Builder
				for _, r := range para.Runs {
					for _, t := range r.Text {
						b.WriteString(t.Content)
					}
				}
				paras = append(paras, b.String())
			}
			text = strings.Join(paras, "\n")
			found = true
		case "docProps/core.xml":
			content, err := readZipFile(file)
			if err != nil {
				continue
			}
			var core coreXML
			if err := xml.Unmarshal(content, &core); err == nil {
				info.Title = strings.TrimSpace(core.Title)
			}
		}
	}
	if !found {
		return "", fmt.Errorf("word/document.xml not found")
	}
	meta.DOCX = info
	return cleanText(text), nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

var textReplacer = strings.NewReplacer(
	"\u0000", "",
	"\ufffd", "",
	"\u001b", "",
	"\r\n", "\n",
	"\r", "\n",
	"\f", "\n",
	"\t", " ",
	"\u00a0", " ",
)

// cleanText strips control characters and collapses runs of spaces and
// blank lines. Paragraph breaks are kept for the chunker.
func cleanText(text string) string {
	text = textReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
