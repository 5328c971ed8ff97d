/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package relational

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/types"
)

var comparisons = map[string]string{
	types.OpEq:  "=",
	types.OpNe:  "<>",
	types.OpGt:  ">",
	types.OpGte: ">=",
	types.OpLt:  "<",
	types.OpLte: "<=",
}

// where is a compiled predicate: a bun query template plus its arguments.
type where struct {
	query string
	args  []interface{}
}

func (w where) empty() bool { return w.query == "" }

// compile turns a filter into one AND-joined predicate. Columns go through
// bun.Ident and values through placeholders, so nothing is concatenated.
func compile(fields repository.FieldMap, filter types.Filter) (where, error) {
	var parts []string
	var args []interface{}
	for _, name := range filter.Keys() {
		col := bun.Ident(fields.Column(name))
		value := filter[name]
		ops, isOps := types.AsOps(value)
		if !isOps {
			if list, isList := asList(value); isList {
				ops = types.Ops{types.OpIn: list}
			} else {
				ops = types.Ops{types.OpEq: value}
			}
		}
		if len(ops) == 0 {
			return where{}, fmt.Errorf("empty operator set for field %q", name)
		}
		for _, op := range ops.Keys() {
			operand := ops[op]
			switch op {
			case types.OpEq, types.OpNe:
				if operand == nil {
					if op == types.OpEq {
						parts = append(parts, "? IS NULL")
					} else {
						parts = append(parts, "? IS NOT NULL")
					}
					args = append(args, col)
					continue
				}
				fallthrough
			case types.OpGt, types.OpGte, types.OpLt, types.OpLte:
				parts = append(parts, "? "+comparisons[op]+" ?")
				args = append(args, col, types.ToColumnValue(operand))
			case types.OpIn, types.OpNin:
				list, err := types.ToSlice(operand)
				if err != nil {
					return where{}, fmt.Errorf("field %q: %w", name, err)
				}
				if len(list) == 0 {
					if op == types.OpIn {
						parts = append(parts, "1 = 0")
					}
					continue
				}
				if op == types.OpIn {
					parts = append(parts, "? IN (?)")
				} else {
					parts = append(parts, "? NOT IN (?)")
				}
				args = append(args, col, bun.In(list))
			default:
				return where{}, fmt.Errorf("unsupported operator %q on field %q", op, name)
			}
		}
	}
	if len(parts) == 0 {
		return where{}, nil
	}
	return where{query: strings.Join(parts, " AND "), args: args}, nil
}

// asList reports plain list values, which filter as membership.
func asList(v interface{}) ([]interface{}, bool) {
	switch v.(type) {
	case nil, []byte, string:
		return nil, false
	}
	list, err := types.ToSlice(v)
	if err != nil {
		return nil, false
	}
	return list, true
}
