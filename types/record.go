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

package types

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Record is a single row or document in contract field spelling.
type Record map[string]interface{}

// Clone returns a shallow copy; nil stays nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter operators understood by both backends.
const (
	OpEq  = "$eq"
	OpNe  = "$ne"
	OpGt  = "$gt"
	OpGte = "$gte"
	OpLt  = "$lt"
	OpLte = "$lte"
	OpIn  = "$in"
	OpNin = "$nin"
)

var knownOps = map[string]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {}, OpIn: {}, OpNin: {},
}

// IsOperator reports whether op is a supported filter operator.
func IsOperator(op string) bool {
	_, ok := knownOps[op]
	return ok
}

// Ops is a set of operator conditions on one field, e.g. Ops{"$gte": 10, "$lt": 20}.
type Ops map[string]interface{}

// Filter maps a field to a scalar (equality) or to Ops.
type Filter map[string]interface{}

// Keys returns the filter fields in sorted order so generated queries are stable.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsOps returns the operator set held by a filter value, if it is one.
func AsOps(v interface{}) (Ops, bool) {
	switch o := v.(type) {
	case Ops:
		return o, true
	case map[string]interface{}:
		return Ops(o), true
	case Record:
		return Ops(o), true
	}
	return nil, false
}

// Keys returns the operators in sorted order.
func (o Ops) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToSlice flattens a membership operand into []interface{}.
func ToSlice(v interface{}) ([]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.([]interface{}); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func decoderConfig(out interface{}) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToTime,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	}
}

// timeLayouts are the text forms drivers hand back for timestamp columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func stringToTime(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := reflect.ValueOf(data).String()
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a time", s)
}

// Decode copies a record into a struct pointer, matching fields by their json tags.
func Decode(rec Record, out interface{}) error {
	dec, err := mapstructure.NewDecoder(decoderConfig(out))
	if err != nil {
		return err
	}
	return dec.Decode(map[string]interface{}(rec))
}

// Encode turns a struct (or struct pointer) into a record keyed by json tags.
// Field values are kept as they are, so time.Time and nested structs survive.
// Embedded structs without a tag are flattened; "-" and empty omitempty
// fields are skipped.
func Encode(in interface{}) (Record, error) {
	rv := reflect.ValueOf(in)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("cannot encode nil %T", in)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		out := Record{}
		encodeStruct(rv, out)
		return out, nil
	case reflect.Map:
		out := map[string]interface{}{}
		dec, err := mapstructure.NewDecoder(decoderConfig(&out))
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(in); err != nil {
			return nil, err
		}
		return Record(out), nil
	}
	return nil, fmt.Errorf("cannot encode %T as a record", in)
}

func encodeStruct(rv reflect.Value, out Record) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, rest, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)
		if field.Anonymous && name == "" {
			for fv.Kind() == reflect.Ptr && !fv.IsNil() {
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				encodeStruct(fv, out)
				continue
			}
		}
		if !field.IsExported() || !fv.CanInterface() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		if strings.Contains(rest, "omitempty") && fv.IsZero() {
			continue
		}
		out[name] = fv.Interface()
	}
}
