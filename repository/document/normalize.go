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
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tomoncle/anystore/types"
)

// Value converts a decoded BSON value into plain Go values: ObjectIDs become
// hex strings, DateTimes become UTC times and nested documents become records.
func Value(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return int64(t.T)
	case primitive.Decimal128:
		return t.String()
	case primitive.Null, primitive.Undefined:
		return nil
	case bson.M:
		return record(map[string]interface{}(t))
	case map[string]interface{}:
		return record(t)
	case types.Record:
		return record(map[string]interface{}(t))
	case bson.D:
		out := make(types.Record, len(t))
		for _, e := range t {
			out[e.Key] = Value(e.Value)
		}
		return out
	case bson.A:
		return list([]interface{}(t))
	case []interface{}:
		return list(t)
	default:
		return v
	}
}

func record(m map[string]interface{}) types.Record {
	out := make(types.Record, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}

func list(a []interface{}) []interface{} {
	out := make([]interface{}, len(a))
	for i, v := range a {
		out[i] = Value(v)
	}
	return out
}

// Raw converts a decoded document into a record without renaming fields.
func Raw(doc bson.M) types.Record {
	if doc == nil {
		return nil
	}
	return record(map[string]interface{}(doc))
}
