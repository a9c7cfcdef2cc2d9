package sql

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Value interface {
	fmt.Stringer

	// return -1 if v1 < v2
	// return 0 if v1 == v2
	// return 1 if v1 > v2
	Compare(v2 Value) (int, error)
}

type Int32Value int32

func (i Int32Value) String() string {
	return strconv.FormatInt(int64(i), 10)
}

func (i1 Int32Value) Compare(v2 Value) (int, error) {
	return Int64Value(i1).Compare(v2)
}

type Int64Value int64

func (i Int64Value) String() string {
	return strconv.FormatInt(int64(i), 10)
}

func (i1 Int64Value) Compare(v2 Value) (int, error) {
	var i2 Int64Value
	switch v2 := v2.(type) {
	case Int32Value:
		i2 = Int64Value(v2)
	case Int64Value:
		i2 = v2
	default:
		return 0, fmt.Errorf("sql: want integer got %v", v2)
	}

	if i1 < i2 {
		return -1, nil
	} else if i1 > i2 {
		return 1, nil
	}
	return 0, nil
}

type StringValue string

func (s StringValue) String() string {
	return fmt.Sprintf("'%s'", string(s))
}

func (s1 StringValue) Compare(v2 Value) (int, error) {
	if s2, ok := v2.(StringValue); ok {
		return strings.Compare(string(s1), string(s2)), nil
	}
	return 0, fmt.Errorf("sql: want string got %v", v2)
}

// Format returns the unquoted text form of a value.
func Format(v Value) string {
	if v == nil {
		return "NULL"
	}
	if s, ok := v.(StringValue); ok {
		return string(s)
	}
	return v.String()
}

// Convert returns v as a value of type t. Integer literals are accepted by int32 fields
// only when they are in range.
func Convert(t Type, v Value) (Value, bool) {
	switch t {
	case Int32Type:
		switch v := v.(type) {
		case Int32Value:
			return v, true
		case Int64Value:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, false
			}
			return Int32Value(v), true
		}
	case Int64Type:
		switch v := v.(type) {
		case Int32Value:
			return Int64Value(v), true
		case Int64Value:
			return v, true
		}
	case StringType:
		if s, ok := v.(StringValue); ok {
			return s, true
		}
	}
	return nil, false
}
