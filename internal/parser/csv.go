package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVParser renders each data row as "header: value" pairs, one row per line,
// with a blank line every rowsPerBlock rows.
type CSVParser struct{}

const rowsPerBlock = 20

func (p *CSVParser) Parse(r io.Reader) (*Parsed, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return &Parsed{}, nil
	}

	headers := records[0]
	var blocks []string
	var block strings.Builder
	for i, row := range records[1:] {
		if i > 0 && i%rowsPerBlock == 0 {
			blocks = append(blocks, block.String())
			block.Reset()
		}
		for j, cell := range row {
			if j > 0 {
				block.WriteString(", ")
			}
			if j < len(headers) {
				block.WriteString(headers[j] + ": ")
			}
			block.WriteString(cell)
		}
		block.WriteString("\n")
	}
	if block.Len() > 0 {
		blocks = append(blocks, block.String())
	}

	return &Parsed{Text: joinBlocks(blocks)}, nil
}
