package node

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/zclconf/go-cty/cty"
)

// Configurable is implemented by nodes that carry persisted settings.
type Configurable interface {
	Properties() (map[string]cty.Value, error)
	SetProperties(props map[string]cty.Value) error
}

// DecodeProperties decodes persisted properties into the settings struct out,
// using `mapstructure` tags for field names.
func DecodeProperties(props map[string]cty.Value, out any) error {
	raw := make(map[string]any, len(props))
	for k, v := range props {
		goVal, err := ctyValueToInterface(v)
		if err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
		raw[k] = goVal
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode properties: %w", err)
	}
	return nil
}

// EncodeProperties converts the settings struct in into persisted properties.
func EncodeProperties(in any) (map[string]cty.Value, error) {
	raw := make(map[string]any)
	if err := mapstructure.Decode(in, &raw); err != nil {
		return nil, fmt.Errorf("failed to encode properties: %w", err)
	}
	out := make(map[string]cty.Value, len(raw))
	for k, v := range raw {
		cv, err := interfaceToCtyValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}

// ctyValueToInterface converts a cty.Value to a Go interface{}.
func ctyValueToInterface(val cty.Value) (any, error) {
	if val.IsNull() || !val.IsKnown() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch {
		case ty.Equals(cty.String):
			return val.AsString(), nil
		case ty.Equals(cty.Number):
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case ty.Equals(cty.Bool):
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			valInterface, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = valInterface
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			valInterface, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, valInterface)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}

// interfaceToCtyValue is the inverse of ctyValueToInterface for the shapes
// mapstructure produces.
func interfaceToCtyValue(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int32:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case uint:
		return cty.NumberUIntVal(uint64(t)), nil
	case uint32:
		return cty.NumberUIntVal(uint64(t)), nil
	case uint64:
		return cty.NumberUIntVal(t), nil
	case float32:
		return cty.NumberFloatVal(float64(t)), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case *big.Float:
		return cty.NumberVal(t), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(t))
		for _, e := range t {
			cv, err := interfaceToCtyValue(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, cv)
		}
		return cty.TupleVal(elems), nil
	case []string:
		elems := make([]any, len(t))
		for i := range t {
			elems[i] = t[i]
		}
		return interfaceToCtyValue(elems)
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make(map[string]cty.Value, len(t))
		for _, k := range keys {
			cv, err := interfaceToCtyValue(t[k])
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported Go type for conversion: %T", v)
	}
}
