package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	pdfx "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

const maxTableRows = 500

// decodeCSV renders a CSV document as tab-separated rows, which keeps
// column alignment visible to the model without inventing a layout.
func decodeCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("csv parse: %w", err)
	}
	var sb strings.Builder
	for i, rec := range records {
		if i >= maxTableRows {
			fmt.Fprintf(&sb, "... (%d more rows)\n", len(records)-maxTableRows)
			break
		}
		sb.WriteString(strings.Join(rec, "\t"))
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String()), nil
}

// decodePDF extracts plain text page by page.
func decodePDF(data []byte) (string, error) {
	r, err := pdfx.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf open: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			sb.WriteString(t)
			sb.WriteString("\n\n")
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}

// decodeExcel renders every sheet as tab-separated rows under a sheet
// header line.
func decodeExcel(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("excel open: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "Sheet: %s\n", sheet)
		for i, row := range rows {
			if i >= maxTableRows {
				fmt.Fprintf(&sb, "... (%d more rows)\n", len(rows)-maxTableRows)
				break
			}
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("workbook contains no rows")
	}
	return text, nil
}

// decodeJSON re-indents the document so structure survives prompt
// truncation better than a single long line, and appends a numeric
// summary so aggregate questions survive even when the payload itself
// gets truncated.
func decodeJSON(data []byte) (string, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("json parse: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if summary := numericSummary(v); summary != "" {
		return string(pretty) + "\n\n" + summary, nil
	}
	return string(pretty), nil
}

func numericSummary(v interface{}) string {
	var nums []float64
	var walk func(interface{})
	walk = func(node interface{}) {
		switch n := node.(type) {
		case float64:
			nums = append(nums, n)
		case []interface{}:
			for _, item := range n {
				walk(item)
			}
		case map[string]interface{}:
			for _, item := range n {
				walk(item)
			}
		}
	}
	walk(v)
	if len(nums) == 0 {
		return ""
	}
	sum, min, max := 0.0, nums[0], nums[0]
	for _, n := range nums {
		sum += n
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("Numeric summary: count=%d sum=%s min=%s max=%s avg=%s",
		len(nums), trimFloat(sum), trimFloat(min), trimFloat(max), trimFloat(sum/float64(len(nums))))
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
