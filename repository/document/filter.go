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

package document

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/types"
)

const idField = "_id"

var fields = repository.FieldMap{repository.FieldID: idField}

// ObjectID returns the ObjectID encoded by a 24 character hex string and
// passes every other value through unchanged.
func ObjectID(id any) any {
	switch v := id.(type) {
	case string:
		if oid, err := primitive.ObjectIDFromHex(v); err == nil {
			return oid
		}
	case *primitive.ObjectID:
		if v != nil {
			return *v
		}
	}
	return id
}

func idValue(field string, v any) any {
	if field == idField {
		return ObjectID(v)
	}
	return v
}

// toQuery turns a filter into a query document.
func toQuery(filter types.Filter) (bson.M, error) {
	query := bson.M{}
	for _, name := range filter.Keys() {
		field := fields.Column(name)
		value := filter[name]
		ops, isOps := types.AsOps(value)
		if !isOps {
			if list, isList := asList(value); isList {
				query[field] = bson.M{types.OpIn: convertList(field, list)}
			} else {
				query[field] = idValue(field, value)
			}
			continue
		}
		if len(ops) == 0 {
			return nil, fmt.Errorf("empty operator set for field %q", name)
		}
		cond := bson.M{}
		for _, op := range ops.Keys() {
			if !types.IsOperator(op) {
				return nil, fmt.Errorf("unsupported operator %q on field %q", op, name)
			}
			operand := ops[op]
			if op == types.OpIn || op == types.OpNin {
				list, err := types.ToSlice(operand)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", name, err)
				}
				cond[op] = convertList(field, list)
				continue
			}
			cond[op] = idValue(field, operand)
		}
		query[field] = cond
	}
	return query, nil
}

func convertList(field string, list []interface{}) bson.A {
	out := make(bson.A, 0, len(list))
	for _, v := range list {
		out = append(out, idValue(field, v))
	}
	return out
}

func asList(v interface{}) ([]interface{}, bool) {
	switch v.(type) {
	case nil, []byte, string, primitive.ObjectID:
		return nil, false
	}
	list, err := types.ToSlice(v)
	if err != nil {
		return nil, false
	}
	return list, true
}

// toSort turns ordered sort fields into a sort document.
func toSort(sort []types.SortField) bson.D {
	d := make(bson.D, 0, len(sort))
	for _, s := range sort {
		d = append(d, bson.E{Key: fields.Column(s.Field), Value: s.Direction()})
	}
	return d
}

// toSet prepares data for a $set, dropping identifier fields.
func toSet(data types.Record) bson.M {
	set := bson.M{}
	for k, v := range data {
		if k == repository.FieldID || k == idField {
			continue
		}
		set[k] = v
	}
	return set
}
