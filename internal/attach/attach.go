// Package attach loads head previews of user-supplied attachment files so
// they can be appended to a prompt without blowing the context: JSON files
// whole, text files by prefix, CSVs by leading rows, PDFs by first page.
package attach

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	textPreviewBytes = 500
	csvPreviewRows   = 6
	maxJSONBytes     = 16 * 1024
)

// Preview returns a textual preview of the file at path, labelled with the
// filename. Unknown extensions fall back to the text preview.
func Preview(path string) (string, error) {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return previewJSON(path, name)
	case ".csv":
		return previewCSV(path, name)
	case ".pdf":
		return previewPDF(path, name)
	default:
		return previewText(path, name)
	}
}

// PreviewAll previews every attachment under dir, skipping unreadable
// files with an inline note rather than failing the prompt.
func PreviewAll(dir string, names []string) string {
	var b strings.Builder
	for _, n := range names {
		p, err := Preview(filepath.Join(dir, filepath.Base(n)))
		if err != nil {
			p = fmt.Sprintf("--- %s ---\n(unreadable: %v)\n", n, err)
		}
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}

func previewJSON(path, name string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)
	if len(content) > maxJSONBytes {
		content = content[:maxJSONBytes] + "\n... (truncated)"
	}
	return fmt.Sprintf("--- %s (json) ---\n%s\n", name, content), nil
}

func previewText(path, name string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, textPreviewBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	suffix := ""
	if n == textPreviewBytes {
		suffix = "\n... (truncated)"
	}
	return fmt.Sprintf("--- %s ---\n%s%s\n", name, string(buf[:n]), suffix), nil
}

func previewCSV(path, name string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s (csv, first rows) ---\n", name)
	for i := 0; i < csvPreviewRows; i++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		b.WriteString(strings.Join(record, ", "))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func previewPDF(path, name string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if r.NumPage() == 0 {
		return fmt.Sprintf("--- %s (pdf) ---\n(empty document)\n", name), nil
	}
	text, err := r.Page(1).GetPlainText(nil)
	if err != nil {
		return "", err
	}
	if len(text) > 2000 {
		text = text[:2000] + "\n... (truncated)"
	}
	return fmt.Sprintf("--- %s (pdf, first page) ---\n%s\n", name, text), nil
}
