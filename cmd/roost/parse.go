package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/birbparty/roost/sdk"
)

// applyFilter adds one --filter of the form column=op.value to q
func applyFilter(q sdk.Query, raw string) (sdk.Query, error) {
	column, expr, ok := strings.Cut(raw, "=")
	if !ok || column == "" {
		return q, fmt.Errorf("filter %q: want column=op.value", raw)
	}
	name, value, ok := strings.Cut(expr, ".")
	if !ok {
		return q, fmt.Errorf("filter %q: want column=op.value", raw)
	}
	op := sdk.Operator(name)
	if !op.Valid() {
		return q, fmt.Errorf("filter %q: unknown operator %q", raw, name)
	}

	switch op {
	case sdk.OpIn:
		items, err := parseList(value)
		if err != nil {
			return q, fmt.Errorf("filter %q: %w", raw, err)
		}
		values := make([]interface{}, len(items))
		for i, item := range items {
			values[i] = item
		}
		return q.In(column, values...), nil
	case sdk.OpIs:
		return q.Is(column, sdk.IsValue(value)), nil
	default:
		return q.Filter(column, op, value), nil
	}
}

// parseList reads (a,"b c",d); quotes allow commas and backslash escapes
func parseList(s string) ([]string, error) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, errors.New("list must be wrapped in parentheses")
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil, errors.New("list is empty")
	}

	var (
		items   []string
		current strings.Builder
		quoted  bool
	)
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case quoted && ch == '\\' && i+1 < len(body):
			i++
			current.WriteByte(body[i])
		case ch == '"':
			quoted = !quoted
		case ch == ',' && !quoted:
			items = append(items, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote in list")
	}
	return append(items, current.String()), nil
}

// applyOrder adds one --order of the form column or column.asc|desc
func applyOrder(q sdk.Query, raw string) (sdk.Query, error) {
	column, direction, _ := strings.Cut(raw, ".")
	switch direction {
	case "", "asc":
		return q.Order(column, true), nil
	case "desc":
		return q.Order(column, false), nil
	}
	return q, fmt.Errorf("order %q: direction must be asc or desc", raw)
}

// readPayload returns the JSON given inline or read from a file ("-" is
// stdin). Comments and trailing commas are accepted.
func readPayload(data, file string, stdin io.Reader) (interface{}, error) {
	var raw []byte
	switch {
	case data != "" && file != "":
		return nil, errors.New("use either --data or --file")
	case data != "":
		raw = []byte(data)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, nil
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	var v interface{}
	if err := output.Unmarshal(standardized, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}
