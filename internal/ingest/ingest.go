package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/quizchain/quizchain/config"
	"github.com/quizchain/quizchain/internal/solver"
)

// FileRef points at one referenced file, either by URL or inline bytes.
// Headers are sent when fetching protected resources.
type FileRef struct {
	URL         string
	Data        []byte
	ContentType string
	Headers     map[string]string
}

// Ingestor turns file references into normalized text. It never returns
// an error: every failure degrades to an empty, zero-confidence file so
// a single bad resource cannot abort the step.
type Ingestor struct {
	cfg    config.IngestConfig
	logger *log.Logger
	client *http.Client
	ocr    OCREngine
}

// New creates an Ingestor. A nil ocr engine degrades image files to
// zero-confidence results.
func New(cfg config.IngestConfig, ocr OCREngine) *Ingestor {
	return &Ingestor{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
		client: &http.Client{Timeout: cfg.PerFileTimeout},
		ocr:    ocr,
	}
}

// IngestURL fetches url with the given headers and normalizes it.
// Satisfies the solver's Ingestor interface.
func (g *Ingestor) IngestURL(ctx context.Context, url string, headers map[string]string) solver.NormalizedFile {
	return g.Ingest(ctx, FileRef{URL: url, Headers: headers})
}

// Ingest produces the NormalizedFile for ref, bounded by ctx.
func (g *Ingestor) Ingest(ctx context.Context, ref FileRef) solver.NormalizedFile {
	origin := ref.URL
	if origin == "" {
		origin = "inline"
	}

	data := ref.Data
	contentType := ref.ContentType
	if data == nil && ref.URL != "" {
		var err error
		data, contentType, err = g.fetch(ctx, ref)
		if err != nil {
			g.logger.Printf("fetch %s failed: %v", ref.URL, err)
			return degraded(origin, solver.KindUnknown)
		}
	}
	if int64(len(data)) > g.cfg.MaxFileBytes {
		g.logger.Printf("%s: %d bytes exceeds limit, degrading", origin, len(data))
		return degraded(origin, solver.KindUnknown)
	}

	kind := DetectKind(contentType, ref.URL, data)
	text, confidence, err := g.decode(ctx, kind, data)
	if err != nil {
		g.logger.Printf("decode %s as %s failed: %v", origin, kind, err)
		return degraded(origin, kind)
	}
	return solver.NormalizedFile{Origin: origin, Kind: kind, Text: text, Confidence: confidence}
}

func (g *Ingestor) fetch(ctx context.Context, ref FileRef) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, "", err
	}
	for k, v := range ref.Headers {
		req.Header.Set(k, v)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", solver.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d", solver.ErrNetwork, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxFileBytes+1))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (g *Ingestor) decode(ctx context.Context, kind solver.FileKind, data []byte) (string, float64, error) {
	switch kind {
	case solver.KindCSV:
		text, err := decodeCSV(data)
		return text, 1.0, err
	case solver.KindPDF:
		text, err := decodePDF(data)
		return text, 1.0, err
	case solver.KindExcel:
		text, err := decodeExcel(data)
		return text, 1.0, err
	case solver.KindJSON:
		text, err := decodeJSON(data)
		return text, 1.0, err
	case solver.KindImage:
		if g.ocr == nil {
			return "", 0, fmt.Errorf("%w: no OCR engine", solver.ErrUnsupportedFileKind)
		}
		text, err := g.ocr.Text(ctx, data, g.cfg.TesseractLang)
		// OCR output is inherently noisier than structured codecs.
		return text, 0.6, err
	case solver.KindText:
		return strings.TrimSpace(string(data)), 1.0, nil
	default:
		// Raw-bytes-as-text fallback, flagged as untrustworthy.
		if utf8.Valid(data) {
			return strings.TrimSpace(string(data)), 0, nil
		}
		return "", 0, nil
	}
}

func degraded(origin string, kind solver.FileKind) solver.NormalizedFile {
	return solver.NormalizedFile{Origin: origin, Kind: kind, Text: "", Confidence: 0}
}

// DetectKind resolves the file kind from the declared content type
// first, then the URL extension, then content sniffing.
func DetectKind(contentType, url string, data []byte) solver.FileKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv"):
		return solver.KindCSV
	case strings.Contains(ct, "pdf"):
		return solver.KindPDF
	case strings.Contains(ct, "spreadsheet") || strings.Contains(ct, "excel"):
		return solver.KindExcel
	case strings.Contains(ct, "json"):
		return solver.KindJSON
	case strings.HasPrefix(ct, "image/"):
		return solver.KindImage
	case strings.HasPrefix(ct, "text/"):
		return solver.KindText
	}

	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return solver.KindCSV
	case strings.HasSuffix(lower, ".pdf"):
		return solver.KindPDF
	case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls"):
		return solver.KindExcel
	case strings.HasSuffix(lower, ".json"):
		return solver.KindJSON
	case strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".jpg"),
		strings.HasSuffix(lower, ".jpeg"), strings.HasSuffix(lower, ".gif"):
		return solver.KindImage
	case strings.HasSuffix(lower, ".txt"):
		return solver.KindText
	}

	return sniffKind(data)
}

func sniffKind(data []byte) solver.FileKind {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "%PDF-"):
		return solver.KindPDF
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return solver.KindJSON
	case len(data) >= 4 && data[0] == 0x50 && data[1] == 0x4b: // zip container
		return solver.KindExcel
	case len(data) >= 8 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return solver.KindImage
	case len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8:
		return solver.KindImage
	case utf8.Valid(data) && trimmed != "":
		return solver.KindText
	default:
		return solver.KindUnknown
	}
}
