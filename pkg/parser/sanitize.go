package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sanitize rewrites tabular input with leading/trailing whitespace removed
// from headers and cells. Comment lines and blank lines pass through
// untouched, and quoting is re-applied only where needed by the CSV writer.
func Sanitize(r io.Reader, w io.Writer) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	hadBOM := bytes.HasPrefix(raw, utf8BOM)
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if hadBOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	out := bufio.NewWriter(w)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	writer := csv.NewWriter(out)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			writer.Flush()
			if _, err := fmt.Fprintln(out, line); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			continue
		}

		record, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil {
			// Leave lines we cannot parse untouched rather than mangling them.
			writer.Flush()
			if _, err := fmt.Fprintln(out, line); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			continue
		}

		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan input: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return out.Flush()
}

// SanitizeFile rewrites a file in place, non-destructively: the sanitized
// content is written to a temporary file in the same directory and renamed
// over the original only on success.
func SanitizeFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".fix-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := Sanitize(in, tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
