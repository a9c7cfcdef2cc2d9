package sql

type Type byte

const (
	UnknownType Type = iota
	Int32Type
	Int64Type
	StringType
)

var typeNames = map[string]Type{
	"int32":  Int32Type,
	"int64":  Int64Type,
	"string": StringType,
}

func ParseType(s string) (Type, bool) {
	t, ok := typeNames[s]
	return t, ok
}

func (t Type) String() string {
	switch t {
	case Int32Type:
		return "int32"
	case Int64Type:
		return "int64"
	case StringType:
		return "string"
	}
	return "unknown"
}

func (t Type) Valid() bool {
	return t == Int32Type || t == Int64Type || t == StringType
}
