package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

type format string

const (
	formatTable format = "table"
	formatJSON  format = "json"
	formatYAML  format = "yaml"
)

type outputMode struct {
	format format
}

func parseOutput(value string) (outputMode, error) {
	switch f := format(strings.ToLower(strings.TrimSpace(value))); f {
	case formatTable, formatJSON, formatYAML:
		return outputMode{format: f}, nil
	case "":
		return outputMode{format: formatTable}, nil
	default:
		return outputMode{}, fmt.Errorf("unknown output format %q", value)
	}
}

func (o outputMode) structured() bool {
	return o.format != formatTable
}

func (o outputMode) print(value any) {
	var (
		data []byte
		err  error
	)
	if o.format == formatYAML {
		data, err = yaml.Marshal(value)
	} else {
		data, err = json.MarshalIndent(value, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		fatal("format "+string(o.format), err)
	}
	_, _ = os.Stdout.Write(data)
}

func (o outputMode) table(rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}
