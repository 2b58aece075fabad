// Package blobstore retrieves a bulk action's source file and parses it into
// an ordered sequence of flat records. Locators are file:// paths or
// http(s):// URLs; the codec is chosen by file extension (.csv or .json).
package blobstore

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"context"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// Reader fetches and decodes record files.
type Reader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewReader creates a Reader with a bounded HTTP client.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// ReadRecords fetches the file behind locator and parses it, preserving the
// file's record order. Any fetch or parse failure is fatal for submission.
func (r *Reader) ReadRecords(ctx context.Context, locator string) ([]domain.Record, error) {
	data, name, err := r.fetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	var records []domain.Record
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		records, err = parseCSV(data)
	case ".json":
		records, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", name, err)
	}

	r.logger.Info("Loaded records from source file",
		slog.String("locator", locator),
		slog.Int("records", len(records)),
	)
	return records, nil
}

func (r *Reader) fetch(ctx context.Context, locator string) ([]byte, string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, "", fmt.Errorf("invalid source locator %q: %w", locator, err)
	}

	switch u.Scheme {
	case "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read source file: %w", err)
		}
		return data, u.Path, nil

	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to build source request: %w", err)
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch source file: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("failed to fetch source file: status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read source response: %w", err)
		}
		return data, u.Path, nil

	case "":
		// Bare paths are treated as local files.
		data, err := os.ReadFile(locator)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read source file: %w", err)
		}
		return data, locator, nil

	default:
		return nil, "", fmt.Errorf("unsupported locator scheme %q", u.Scheme)
	}
}

// parseCSV decodes a header-row CSV into records, one per data row.
func parseCSV(data []byte) ([]domain.Record, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []domain.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		record := make(domain.Record, len(header))
		for i, col := range header {
			record[col] = row[i]
		}
		records = append(records, record)
	}
	return records, nil
}

// parseJSON decodes an array of flat objects. Non-string scalars are
// stringified so every record is a flat key/value map.
func parseJSON(data []byte) ([]domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON records: %w", err)
	}

	records := make([]domain.Record, 0, len(raw))
	for _, obj := range raw {
		record := make(domain.Record, len(obj))
		for k, v := range obj {
			record[k] = stringifyValue(v)
		}
		records = append(records, record)
	}
	return records, nil
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
