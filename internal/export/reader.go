package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// File is a parsed export file.
type File struct {
	// Header holds the "key: value" comment lines.
	Header  map[string]string
	Columns []string
	Rows    [][]string
}

// ReadFile parses an export file.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening export file %s: %w", path, err)
	}
	defer f.Close()

	out, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("error reading export file %s: %w", path, err)
	}
	return out, nil
}

// Read parses an export file from r.
func Read(r io.Reader) (*File, error) {
	out := &File{Header: make(map[string]string)}

	var body bytes.Buffer
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if k, v, ok := strings.Cut(comment, ":"); ok {
				out.Header[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	records, err := csv.NewReader(&body).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no column header")
	}
	out.Columns = records[0]
	out.Rows = records[1:]
	return out, nil
}
