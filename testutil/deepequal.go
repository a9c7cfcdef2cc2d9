package testutil

import (
	"fmt"
	"reflect"
)

type comparer struct {
	path []string
	diff string
}

func (c *comparer) push(format string, args ...interface{}) {
	c.path = append(c.path, fmt.Sprintf(format, args...))
}

func (c *comparer) pop() {
	c.path = c.path[:len(c.path)-1]
}

func (c *comparer) differ(v1, v2 reflect.Value) bool {
	var s string
	for _, p := range c.path {
		s += p
	}
	if s != "" {
		s += ": "
	}
	c.diff = fmt.Sprintf("%s%s != %s", s, format(v1), format(v2))
	return false
}

func format(v reflect.Value) string {
	if !v.IsValid() {
		return "<invalid>"
	}
	if v.CanInterface() {
		return fmt.Sprintf("%#v", v.Interface())
	}
	return v.String()
}

// length is the length of a slice or map; nil has length zero.
func length(v reflect.Value) int {
	if v.IsNil() {
		return 0
	}
	return v.Len()
}

func (c *comparer) equal(v1, v2 reflect.Value) bool {
	if !v1.IsValid() || !v2.IsValid() {
		if v1.IsValid() != v2.IsValid() {
			return c.differ(v1, v2)
		}
		return true
	}
	if v1.Type() != v2.Type() {
		c.diff = fmt.Sprintf("type %s != type %s", v1.Type(), v2.Type())
		return false
	}

	switch v1.Kind() {
	case reflect.Array, reflect.Slice:
		if v1.Kind() == reflect.Slice && length(v1) != length(v2) {
			return c.differ(v1, v2)
		}
		for i := 0; i < v1.Len(); i++ {
			c.push("[%d]", i)
			if !c.equal(v1.Index(i), v2.Index(i)) {
				return false
			}
			c.pop()
		}
	case reflect.Map:
		if length(v1) != length(v2) {
			return c.differ(v1, v2)
		}
		for _, k := range v1.MapKeys() {
			val2 := v2.MapIndex(k)
			c.push("[%v]", k)
			if !val2.IsValid() {
				return c.differ(v1.MapIndex(k), val2)
			}
			if !c.equal(v1.MapIndex(k), val2) {
				return false
			}
			c.pop()
		}
	case reflect.Interface, reflect.Ptr:
		if v1.IsNil() || v2.IsNil() {
			if v1.IsNil() != v2.IsNil() {
				return c.differ(v1, v2)
			}
			return true
		}
		if v1.Kind() == reflect.Ptr && v1.Pointer() == v2.Pointer() {
			return true
		}
		return c.equal(v1.Elem(), v2.Elem())
	case reflect.Struct:
		for i := 0; i < v1.NumField(); i++ {
			c.push(".%s", v1.Type().Field(i).Name)
			if !c.equal(v1.Field(i), v2.Field(i)) {
				return false
			}
			c.pop()
		}
	case reflect.Func:
		if !v1.IsNil() || !v2.IsNil() {
			return c.differ(v1, v2)
		}
	case reflect.Bool:
		if v1.Bool() != v2.Bool() {
			return c.differ(v1, v2)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v1.Int() != v2.Int() {
			return c.differ(v1, v2)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr:
		if v1.Uint() != v2.Uint() {
			return c.differ(v1, v2)
		}
	case reflect.Float32, reflect.Float64:
		if v1.Float() != v2.Float() {
			return c.differ(v1, v2)
		}
	case reflect.String:
		if v1.String() != v2.String() {
			return c.differ(v1, v2)
		}
	default:
		if !reflect.DeepEqual(v1.Interface(), v2.Interface()) {
			return c.differ(v1, v2)
		}
	}
	return true
}

// DeepEqual reports whether x and y are deeply equal. Unlike reflect.DeepEqual, a nil slice
// or map equals an empty one: rows and ids come back from the stores either way. If trc is
// passed, it is set to the path of the first difference.
func DeepEqual(x, y interface{}, trc ...*string) bool {
	if len(trc) > 1 {
		panic("testutil.DeepEqual: more than one optional argument")
	}

	var c comparer
	eq := c.equal(reflect.ValueOf(x), reflect.ValueOf(y))
	if len(trc) == 1 && trc[0] != nil {
		*trc[0] = c.diff
	}
	return eq
}
