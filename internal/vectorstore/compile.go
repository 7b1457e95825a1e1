package vectorstore

import (
	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/ovterrors"
)

// compileWireDSL translates a filter AST into the {"op": ...} wire DSL the
// remote vector backends speak. It is pure and deterministic; condition
// order is preserved. unsupported lists node kinds this particular backend
// rejects; hitting one surfaces InvalidArgument at compile time, before
// any network call.
//
// Collapsing contracts: a nil expr or empty And/Or compiles to nil (the
// empty filter, matches everything); single-element And/Or collapses to
// its one child.
func compileWireDSL(backend string, e filter.Expr, unsupported map[string]bool) (map[string]interface{}, error) {
	if e == nil {
		return nil, nil
	}
	if unsupported == nil {
		unsupported = map[string]bool{}
	}
	switch v := e.(type) {
	case filter.And:
		return compileJunction(backend, "and", v.Conds, unsupported)
	case filter.Or:
		return compileJunction(backend, "or", v.Conds, unsupported)
	case filter.Eq:
		return map[string]interface{}{"op": "must", "field": v.Field, "conds": []interface{}{v.Value}}, nil
	case filter.In:
		return map[string]interface{}{"op": "must", "field": v.Field, "conds": append([]interface{}{}, v.Values...)}, nil
	case filter.Prefix:
		return map[string]interface{}{"op": "prefix", "field": v.Field, "prefix": v.Prefix}, nil
	case filter.Range:
		payload := map[string]interface{}{"op": "range", "field": v.Field}
		if v.Gte != nil {
			payload["gte"] = v.Gte
		}
		if v.Gt != nil {
			payload["gt"] = v.Gt
		}
		if v.Lte != nil {
			payload["lte"] = v.Lte
		}
		if v.Lt != nil {
			payload["lt"] = v.Lt
		}
		return payload, nil
	case filter.Contains:
		if unsupported["contains"] {
			return nil, unsupportedNode(backend, e)
		}
		return map[string]interface{}{"op": "contains", "field": v.Field, "substring": v.Substring}, nil
	case filter.Regex:
		if unsupported["regex"] {
			return nil, unsupportedNode(backend, e)
		}
		return map[string]interface{}{"op": "regex", "field": v.Field, "pattern": v.Pattern}, nil
	case filter.TimeRange:
		payload := map[string]interface{}{"op": "range", "field": v.Field}
		if v.Start != nil {
			payload["gte"] = v.Start
		}
		if v.End != nil {
			payload["lt"] = v.End
		}
		return payload, nil
	case filter.RawDSL:
		if payload, ok := v.Payload.(map[string]interface{}); ok {
			return payload, nil
		}
		return nil, ovterrors.InvalidArgumentf("RawDSL payload for backend %q must be a map, got %T", backend, v.Payload)
	default:
		return nil, unsupportedNode(backend, e)
	}
}

func compileJunction(backend, op string, conds []filter.Expr, unsupported map[string]bool) (map[string]interface{}, error) {
	compiled := make([]interface{}, 0, len(conds))
	for _, c := range conds {
		if c == nil {
			continue
		}
		dsl, err := compileWireDSL(backend, c, unsupported)
		if err != nil {
			return nil, err
		}
		if dsl == nil {
			continue
		}
		compiled = append(compiled, dsl)
	}
	switch len(compiled) {
	case 0:
		return nil, nil
	case 1:
		return compiled[0].(map[string]interface{}), nil
	default:
		return map[string]interface{}{"op": op, "conds": compiled}, nil
	}
}

// WireDSL compiles e with the permissive (http) rule set; it is how the
// recorder serializes filters into JSONL records.
func WireDSL(e filter.Expr) (map[string]interface{}, error) {
	return compileWireDSL("http", e, nil)
}

// ParseWireDSL is the inverse of WireDSL, used by the player to rebuild a
// typed filter from a recorded request. Unknown ops fail with
// InvalidArgument rather than silently matching everything.
func ParseWireDSL(dsl map[string]interface{}) (filter.Expr, error) {
	if len(dsl) == 0 {
		return nil, nil
	}
	op, _ := dsl["op"].(string)
	field, _ := dsl["field"].(string)
	switch op {
	case "and", "or":
		raw, _ := dsl["conds"].([]interface{})
		conds := make([]filter.Expr, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, ovterrors.InvalidArgumentf("malformed %s condition %v", op, item)
			}
			child, err := ParseWireDSL(m)
			if err != nil {
				return nil, err
			}
			if child != nil {
				conds = append(conds, child)
			}
		}
		if op == "and" {
			return filter.Simplify(filter.And{Conds: conds}), nil
		}
		return filter.Simplify(filter.Or{Conds: conds}), nil
	case "must":
		raw, _ := dsl["conds"].([]interface{})
		switch len(raw) {
		case 0:
			return nil, ovterrors.InvalidArgumentf("must filter on %q has no conditions", field)
		case 1:
			return filter.Eq{Field: field, Value: raw[0]}, nil
		default:
			return filter.In{Field: field, Values: raw}, nil
		}
	case "prefix":
		prefix, _ := dsl["prefix"].(string)
		return filter.Prefix{Field: field, Prefix: prefix}, nil
	case "range":
		return filter.Range{Field: field, Gt: dsl["gt"], Gte: dsl["gte"], Lt: dsl["lt"], Lte: dsl["lte"]}, nil
	case "contains":
		substring, _ := dsl["substring"].(string)
		return filter.Contains{Field: field, Substring: substring}, nil
	case "regex":
		pattern, _ := dsl["pattern"].(string)
		return filter.Regex{Field: field, Pattern: pattern}, nil
	default:
		return nil, ovterrors.InvalidArgumentf("unknown filter op %q", op)
	}
}

func unsupportedNode(backend string, e filter.Expr) error {
	return ovterrors.Wrap(ovterrors.InvalidArgument,
		&filter.UnsupportedNodeError{Backend: backend, Node: e},
		"cannot compile filter for backend %q", backend)
}
