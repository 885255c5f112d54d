// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
equal.go - Canonical Structural Equality

Merge conflict detection compares an incoming record against the live one.
The comparison must not depend on object key order or on how a number was
spelled, so values are compared structurally:

  - objects compare by key set and per-key value, ignoring order
  - arrays compare element by element, order significant
  - numbers compare by value, so 100, 100.0 and json.Number("100") are equal
  - strings, booleans and null compare as themselves

IDKey produces the canonical lookup key for a domain id with the same number
rules, so a record exported as {"id": 1} matches a live {"id": 1.0}.
*/

//nolint:staticcheck // File documentation, not package doc
package models

import (
	"math"
	"reflect"
	"strconv"

	"github.com/goccy/go-json"
)

// Equal reports whether a and b are structurally equal.
func Equal(a, b any) bool {
	if as, ok := numberString(a); ok {
		bs, ok := numberString(b)
		return ok && numbersEqual(as, bs)
	}

	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}

	if am, ok := asMap(a); ok {
		bm, ok := asMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, exists := bm[k]
			if !exists || !Equal(av, bv) {
				return false
			}
		}
		return true
	}

	if as, ok := asSlice(a); ok {
		bs, ok := asSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// IDKey returns the canonical lookup key for a domain id.
// Strings and numbers never collide: "1" and 1 are different ids.
func IDKey(id any) (string, bool) {
	if s, ok := id.(string); ok {
		if s == "" {
			return "", false
		}
		return "s:" + s, true
	}
	if n, ok := numberString(id); ok {
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return "n:" + strconv.FormatInt(i, 10), true
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return "n:" + strconv.FormatInt(int64(f), 10), true
		}
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64), true
	}
	return "", false
}

func numberString(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), true
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32), true
	case int:
		return strconv.Itoa(n), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	}
	return "", false
}

// NumberValue returns v as a float64 when it is any numeric type or a
// json.Number.
func NumberValue(v any) (float64, bool) {
	s, ok := numberString(v)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func numbersEqual(a, b string) bool {
	if a == b {
		return true
	}
	if ai, err := strconv.ParseInt(a, 10, 64); err == nil {
		if bi, err := strconv.ParseInt(b, 10, 64); err == nil {
			return ai == bi
		}
	}
	af, errA := strconv.ParseFloat(a, 64)
	bf, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && af == bf
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []Record:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	return nil, false
}
