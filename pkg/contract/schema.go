package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is the declared type of a getter stack value.
type Kind string

const (
	KindInt    Kind = "int"
	KindCell   Kind = "cell"
	KindString Kind = "string"
)

// ErrSchemaMismatch is returned when a getter stack does not match its schema.
var ErrSchemaMismatch = errors.New("stack does not match schema")

// Field is one positional stack value.
type Field struct {
	Name    string
	Kind    Kind
	Discard bool
}

// Schema is the ordered return shape of a getter method.
type Schema struct {
	Method string
	Fields []Field
}

// StackItem is a single typed value returned by a getter.
type StackItem struct {
	Type  string
	Value gjson.Result
}

// Record holds decoded stack values keyed by field name.
type Record map[string]interface{}

// ConfigSchema is the return shape of get_config.
var ConfigSchema = Schema{
	Method: "get_config",
	Fields: []Field{
		{Name: "owner", Kind: KindCell, Discard: true},
		{Name: "requiredNumbersCount", Kind: KindInt},
		{Name: "maxNumberRange", Kind: KindInt},
		{Name: "maxJackpotNumberRange", Kind: KindInt},
		{Name: "maxSupportedRepeatsPerDraw", Kind: KindInt},
		{Name: "defaultRepeatSelection", Kind: KindInt},
		{Name: "daysPerDraw", Kind: KindInt},
		{Name: "discountForEvery", Kind: KindInt},
		{Name: "discountGet", Kind: KindInt},
	},
}

// StateSchema is the return shape of get_state.
var StateSchema = Schema{
	Method: "get_state",
	Fields: []Field{
		{Name: "owner", Kind: KindCell, Discard: true},
		{Name: "latestDraw", Kind: KindString},
		{Name: "jackpotAbsoluteBalance", Kind: KindInt},
		{Name: "jackpotRolloverBalance", Kind: KindInt},
		{Name: "pastRepeatedPurchasesBalance", Kind: KindInt},
	},
}

// Decode validates stack against the schema and returns the named values.
func (s Schema) Decode(stack []StackItem) (Record, error) {
	if len(stack) != len(s.Fields) {
		return nil, fmt.Errorf("%s: %w: expected %d values, got %d", s.Method, ErrSchemaMismatch, len(s.Fields), len(stack))
	}
	record := make(Record, len(s.Fields))
	for i, field := range s.Fields {
		item := stack[i]
		if !kindMatches(field.Kind, item.Type) {
			return nil, fmt.Errorf("%s: %w: field %s at %d is %q, want %s", s.Method, ErrSchemaMismatch, field.Name, i, item.Type, field.Kind)
		}
		if field.Discard {
			continue
		}
		switch field.Kind {
		case KindInt:
			v, err := parseInt(item.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w: field %s: %v", s.Method, ErrSchemaMismatch, field.Name, err)
			}
			record[field.Name] = v
		case KindString:
			record[field.Name] = item.Value.String()
		default:
			record[field.Name] = item.Value.Raw
		}
	}
	return record, nil
}

// Int returns the integer field name.
func (r Record) Int(name string) int64 {
	v, _ := r[name].(int64)
	return v
}

// String returns the string field name.
func (r Record) String(name string) string {
	v, _ := r[name].(string)
	return v
}

func kindMatches(kind Kind, stackType string) bool {
	switch strings.ToLower(stackType) {
	case "num", "int", "number":
		return kind == KindInt
	case "cell", "slice", "tvm.cell", "tvm.slice":
		return kind == KindCell || kind == KindString
	case "string", "str":
		return kind == KindString
	}
	return false
}

func parseInt(v gjson.Result) (int64, error) {
	if v.Type == gjson.Number {
		return v.Int(), nil
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(v.String()), 0)
	if !ok {
		return 0, fmt.Errorf("invalid integer %q", v.String())
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("integer %s out of range", n.String())
	}
	return n.Int64(), nil
}

// parseDraw splits a comma separated draw into numbers.
func parseDraw(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	numbers := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid draw number %q: %w", p, err)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}
