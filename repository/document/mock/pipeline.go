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
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// stagesOf accepts any slice of stage documents.
func stagesOf(pipeline interface{}) ([]bson.D, error) {
	rv := reflect.ValueOf(pipeline)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("pipeline must be an array of stages, got %T", pipeline)
	}
	stages := make([]bson.D, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		stage, err := toD(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		if len(stage) != 1 {
			return nil, fmt.Errorf("stage %d must have exactly one field", i)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// aggregate supports $match, $sort, $skip, $limit, $count, $project and $group.
func aggregate(docs []bson.M, stages []bson.D) ([]bson.M, error) {
	for _, stage := range stages {
		name, spec := stage[0].Key, stage[0].Value
		switch name {
		case "$match":
			q, ok := asDoc(spec)
			if !ok {
				return nil, fmt.Errorf("$match needs a document")
			}
			kept := make([]bson.M, 0, len(docs))
			for _, doc := range docs {
				m, err := matches(doc, q)
				if err != nil {
					return nil, err
				}
				if m {
					kept = append(kept, doc)
				}
			}
			docs = kept
		case "$sort":
			keys, err := toD(spec)
			if err != nil {
				return nil, err
			}
			sortDocs(docs, keys)
		case "$skip":
			n, ok := asFloat(spec)
			if !ok {
				return nil, fmt.Errorf("$skip needs a number")
			}
			docs = window(docs, int64(n), 0)
		case "$limit":
			n, ok := asFloat(spec)
			if !ok || n <= 0 {
				return nil, fmt.Errorf("$limit needs a positive number")
			}
			docs = window(docs, 0, int64(n))
		case "$count":
			field, ok := spec.(string)
			if !ok || field == "" {
				return nil, fmt.Errorf("$count needs a field name")
			}
			if len(docs) == 0 {
				docs = []bson.M{}
			} else {
				docs = []bson.M{{field: int32(len(docs))}}
			}
		case "$project":
			p, ok := asDoc(spec)
			if !ok {
				return nil, fmt.Errorf("$project needs a document")
			}
			for i, doc := range docs {
				docs[i] = project(doc, p)
			}
		case "$group":
			g, ok := asDoc(spec)
			if !ok {
				return nil, fmt.Errorf("$group needs a document")
			}
			grouped, err := group(docs, g)
			if err != nil {
				return nil, err
			}
			docs = grouped
		default:
			return nil, fmt.Errorf("unsupported pipeline stage %s", name)
		}
	}
	return docs, nil
}

func eval(doc bson.M, expr interface{}) interface{} {
	if s, ok := expr.(string); ok && strings.HasPrefix(s, "$") {
		v, _ := lookup(doc, strings.TrimPrefix(s, "$"))
		return v
	}
	return expr
}

func truthy(v interface{}) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	if f, ok := asFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

func project(doc bson.M, spec bson.M) bson.M {
	include := false
	for k, v := range spec {
		if k == "_id" {
			continue
		}
		if t, ok := truthy(v); !ok || t {
			include = true
		}
	}
	if !include {
		out := clone(doc)
		for k, v := range spec {
			if t, ok := truthy(v); ok && !t {
				unsetPath(out, k)
			}
		}
		return out
	}
	out := bson.M{}
	if v, ok := spec["_id"]; !ok {
		out["_id"] = doc["_id"]
	} else if t, isBool := truthy(v); isBool && t {
		out["_id"] = doc["_id"]
	}
	for k, v := range spec {
		if k == "_id" {
			continue
		}
		if t, ok := truthy(v); ok {
			if t {
				if val, present := lookup(doc, k); present {
					setPath(out, k, cloneValue(val))
				}
			}
			continue
		}
		setPath(out, k, cloneValue(eval(doc, v)))
	}
	return out
}

type bucket struct {
	key  interface{}
	docs []bson.M
}

func group(docs []bson.M, spec bson.M) ([]bson.M, error) {
	idExpr, ok := spec["_id"]
	if !ok {
		return nil, fmt.Errorf("$group needs an _id")
	}
	var buckets []*bucket
	for _, doc := range docs {
		key := eval(doc, idExpr)
		var b *bucket
		for _, existing := range buckets {
			if equal(existing.key, key) {
				b = existing
				break
			}
		}
		if b == nil {
			b = &bucket{key: key}
			buckets = append(buckets, b)
		}
		b.docs = append(b.docs, doc)
	}

	out := make([]bson.M, 0, len(buckets))
	for _, b := range buckets {
		row := bson.M{"_id": b.key}
		for field, accSpec := range spec {
			if field == "_id" {
				continue
			}
			acc, ok := asDoc(accSpec)
			if !ok || len(acc) != 1 {
				return nil, fmt.Errorf("field %s must be an accumulator object", field)
			}
			for op, expr := range acc {
				v, err := accumulate(op, expr, b.docs)
				if err != nil {
					return nil, err
				}
				row[field] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(op string, expr interface{}, docs []bson.M) (interface{}, error) {
	switch op {
	case "$sum", "$avg":
		var total float64
		integral := true
		n := 0
		for _, doc := range docs {
			v := eval(doc, expr)
			f, ok := asFloat(v)
			if !ok {
				continue
			}
			if _, isFloat := v.(float64); isFloat {
				integral = false
			}
			total += f
			n++
		}
		if op == "$avg" {
			if n == 0 {
				return nil, nil
			}
			return total / float64(n), nil
		}
		if integral {
			return int64(total), nil
		}
		return total, nil
	case "$min", "$max":
		var best interface{}
		for _, doc := range docs {
			v := eval(doc, expr)
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := order(v, best)
			if (op == "$min" && c < 0) || (op == "$max" && c > 0) {
				best = v
			}
		}
		return best, nil
	case "$first":
		if len(docs) == 0 {
			return nil, nil
		}
		return eval(docs[0], expr), nil
	case "$push":
		out := bson.A{}
		for _, doc := range docs {
			out = append(out, eval(doc, expr))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported accumulator %s", op)
}
