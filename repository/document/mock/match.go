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

package mock

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// roundTrip marshals v to BSON and back so values carry driver types.
func roundTrip(v interface{}) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := bson.M{}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toD(v interface{}) (bson.D, error) {
	if d, ok := v.(bson.D); ok {
		return d, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func asDoc(v interface{}) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return bson.M(t), true
	case bson.D:
		m := make(bson.M, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case bson.A:
		return []interface{}(t), true
	case []interface{}:
		return t, true
	}
	return nil, false
}

func clone(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return clone(t)
	case bson.D:
		out := make(bson.D, len(t))
		for i, e := range t {
			out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func lookup(doc bson.M, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asDoc(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc bson.M, path string, value interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asDoc(cur[part])
		if !ok {
			next = bson.M{}
		}
		cur[part] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func unsetPath(doc bson.M, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asDoc(cur[part])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asMillis(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return int64(t), true
	case time.Time:
		return t.UnixMilli(), true
	}
	return 0, false
}

func cmp[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compare orders two values of the same BSON family; ok is false when the
// values are not comparable.
func compare(a, b interface{}) (int, bool) {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return cmp(fa, fb), true
		}
		return 0, false
	}
	if ta, ok := asMillis(a); ok {
		if tb, ok := asMillis(b); ok {
			return cmp(ta, tb), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp(x, y), true
		}
	case primitive.ObjectID:
		if y, ok := b.(primitive.ObjectID); ok {
			return bytes.Compare(x[:], y[:]), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// rank gives the cross-type sort order used by the server.
func rank(v interface{}) int {
	if v == nil {
		return 0
	}
	if _, ok := asFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case bson.M, bson.D, map[string]interface{}:
		return 3
	case bson.A, []interface{}:
		return 4
	case primitive.ObjectID:
		return 5
	case bool:
		return 6
	case primitive.DateTime, time.Time:
		return 7
	}
	return 8
}

func order(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp(int64(ra), int64(rb))
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	return 0
}

// matches evaluates a query document against doc.
func matches(doc bson.M, query bson.M) (bool, error) {
	for key, cond := range query {
		switch key {
		case "$and", "$or", "$nor":
			clauses, ok := asList(cond)
			if !ok {
				return false, fmt.Errorf("%s must be an array", key)
			}
			hit := 0
			for _, clause := range clauses {
				sub, ok := asDoc(clause)
				if !ok {
					return false, fmt.Errorf("%s entries must be documents", key)
				}
				m, err := matches(doc, sub)
				if err != nil {
					return false, err
				}
				if m {
					hit++
				}
			}
			if (key == "$and" && hit != len(clauses)) || (key == "$or" && hit == 0) || (key == "$nor" && hit > 0) {
				return false, nil
			}
			continue
		}
		value, present := lookup(doc, key)
		ok, err := matchField(value, present, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func isOperatorDoc(cond interface{}) (bson.M, bool) {
	m, ok := asDoc(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(value interface{}, present bool, cond interface{}) (bool, error) {
	ops, isOps := isOperatorDoc(cond)
	if !isOps {
		return eq(value, present, cond), nil
	}
	for op, operand := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = eq(value, present, operand)
		case "$ne":
			ok = !eq(value, present, operand)
		case "$gt", "$gte", "$lt", "$lte":
			ok = present && relational(op, value, operand)
		case "$in", "$nin":
			list, isList := asList(operand)
			if !isList {
				return false, fmt.Errorf("%s needs an array", op)
			}
			in := false
			for _, candidate := range list {
				if eq(value, present, candidate) {
					in = true
					break
				}
			}
			ok = in == (op == "$in")
		case "$exists":
			want, _ := operand.(bool)
			if f, isNum := asFloat(operand); isNum {
				want = f != 0
			}
			ok = present == want
		default:
			return false, fmt.Errorf("unknown operator: %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func eq(value interface{}, present bool, operand interface{}) bool {
	if operand == nil {
		return !present || value == nil
	}
	if !present {
		return false
	}
	if list, ok := asList(value); ok {
		if _, operandIsList := asList(operand); !operandIsList {
			for _, item := range list {
				if equal(item, operand) {
					return true
				}
			}
			return false
		}
	}
	return equal(value, operand)
}

func relational(op string, value, operand interface{}) bool {
	c, ok := compare(value, operand)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

// apply runs an update document against doc and returns the new document.
func apply(doc bson.M, update bson.M) (bson.M, error) {
	hasOps := false
	for k := range update {
		if strings.HasPrefix(k, "$") {
			hasOps = true
			break
		}
	}
	if !hasOps {
		repl := clone(update)
		repl["_id"] = doc["_id"]
		return repl, nil
	}
	out := clone(doc)
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, op := range keys {
		fields, ok := asDoc(update[op])
		if !ok {
			return nil, fmt.Errorf("%s needs a document", op)
		}
		for path, v := range fields {
			switch op {
			case "$set":
				if path == "_id" && !equal(v, doc["_id"]) {
					return nil, fmt.Errorf("performing an update on the path '_id' would modify the immutable field '_id'")
				}
				setPath(out, path, cloneValue(v))
			case "$unset":
				unsetPath(out, path)
			case "$inc":
				cur, _ := lookup(out, path)
				sum, err := add(cur, v)
				if err != nil {
					return nil, err
				}
				setPath(out, path, sum)
			default:
				return nil, fmt.Errorf("unknown update operator: %s", op)
			}
		}
	}
	return out, nil
}

func add(cur, delta interface{}) (interface{}, error) {
	d, ok := asFloat(delta)
	if !ok {
		return nil, fmt.Errorf("cannot increment with non-numeric argument")
	}
	if cur == nil {
		return delta, nil
	}
	c, ok := asFloat(cur)
	if !ok {
		return nil, fmt.Errorf("cannot apply $inc to a non-numeric value")
	}
	_, curFloat := cur.(float64)
	_, deltaFloat := delta.(float64)
	if curFloat || deltaFloat {
		return c + d, nil
	}
	return int64(c + d), nil
}

func sortDocs(docs []bson.M, keys bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			a, _ := lookup(docs[i], k.Key)
			b, _ := lookup(docs[j], k.Key)
			c := order(a, b)
			if c == 0 {
				continue
			}
			if dir, _ := asFloat(k.Value); dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
