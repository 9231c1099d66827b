package protoconv

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/pql/executor"
	"github.com/zero-day-ai/pql/graph"
)

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// ValueToProto converts a graph value to a structpb value.
func ValueToProto(v graph.Value) *structpb.Value {
	switch v.Kind() {
	case graph.KindString:
		s, _ := v.AsString()
		return structpb.NewStringValue(s)
	case graph.KindBool:
		b, _ := v.AsBool()
		return structpb.NewBoolValue(b)
	case graph.KindInt, graph.KindFloat:
		f, _ := v.AsFloat()
		return structpb.NewNumberValue(f)
	case graph.KindMap:
		m, _ := v.AsMap()
		return structpb.NewStructValue(PropertiesToStruct(m))
	default:
		return structpb.NewNullValue()
	}
}

// ValueFromProto converts a structpb value back to a graph value. Lists have
// no graph representation and are rejected.
func ValueFromProto(pv *structpb.Value) (graph.Value, error) {
	if pv == nil {
		return graph.Null(), nil
	}
	switch k := pv.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return graph.Null(), nil
	case *structpb.Value_StringValue:
		return graph.String(k.StringValue), nil
	case *structpb.Value_BoolValue:
		return graph.Bool(k.BoolValue), nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
			return graph.Int(int64(f)), nil
		}
		return graph.Float(f), nil
	case *structpb.Value_StructValue:
		p, err := PropertiesFromStruct(k.StructValue)
		if err != nil {
			return graph.Null(), err
		}
		return graph.Map(p), nil
	default:
		return graph.Null(), fmt.Errorf("unsupported structpb kind %T", k)
	}
}

// PropertiesToStruct converts a property map to a Struct.
func PropertiesToStruct(p *graph.Properties) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, p.Len())}
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		s.Fields[k] = ValueToProto(v)
	}
	return s
}

// PropertiesFromStruct converts a Struct to a property map with sorted keys.
func PropertiesFromStruct(s *structpb.Struct) (*graph.Properties, error) {
	keys := make([]string, 0, len(s.GetFields()))
	for k := range s.GetFields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := graph.NewProperties()
	for _, k := range keys {
		v, err := ValueFromProto(s.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		p.Set(k, v)
	}
	return p, nil
}

// RowsToProto converts result rows to a list of lists.
func RowsToProto(rows []executor.Row) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, len(rows))}
	for i, row := range rows {
		cells := &structpb.ListValue{Values: make([]*structpb.Value, len(row))}
		for j, v := range row {
			cells.Values[j] = ValueToProto(v)
		}
		out.Values[i] = structpb.NewListValue(cells)
	}
	return out
}

// RowsFromProto converts a list of lists back to rows. Every row must have
// width cells.
func RowsFromProto(list *structpb.ListValue, width int) ([]executor.Row, error) {
	rows := make([]executor.Row, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		cells := item.GetListValue()
		if cells == nil {
			return nil, fmt.Errorf("row %d: expected a list", i)
		}
		if len(cells.GetValues()) != width {
			return nil, fmt.Errorf("row %d: expected %d cells, got %d", i, width, len(cells.GetValues()))
		}
		row := make(executor.Row, width)
		for j, cell := range cells.GetValues() {
			v, err := ValueFromProto(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ResultToStruct converts a result to {"columns": [...], "rows": [[...], ...]}.
func ResultToStruct(res *executor.Result) *structpb.Struct {
	cols := &structpb.ListValue{Values: make([]*structpb.Value, len(res.Columns))}
	for i, c := range res.Columns {
		cols.Values[i] = structpb.NewStringValue(c)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"columns": structpb.NewListValue(cols),
		"rows":    structpb.NewListValue(RowsToProto(res.Rows)),
	}}
}

// ResultFromStruct is the inverse of ResultToStruct.
func ResultFromStruct(s *structpb.Struct) (*executor.Result, error) {
	colList := s.GetFields()["columns"].GetListValue()
	if colList == nil {
		return nil, fmt.Errorf("result: missing columns")
	}
	cols := make([]string, len(colList.GetValues()))
	for i, c := range colList.GetValues() {
		sv, ok := c.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("result: column %d is not a string", i)
		}
		cols[i] = sv.StringValue
	}

	rows, err := RowsFromProto(s.GetFields()["rows"].GetListValue(), len(cols))
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	return &executor.Result{Columns: cols, Rows: rows}, nil
}

// MarshalResult encodes a result as protojson.
func MarshalResult(res *executor.Result) ([]byte, error) {
	return protojson.Marshal(ResultToStruct(res))
}

// UnmarshalResult decodes protojson produced by MarshalResult.
func UnmarshalResult(data []byte) (*executor.Result, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return ResultFromStruct(&s)
}
