package scim

import (
	"sort"
	"strconv"
	"strings"
)

// ParseListField flattens Keeper custom field values into a list. Each value
// may itself hold several entries separated by new lines or commas.
func ParseListField(fields []map[string]any) (result []string) {
	for _, field := range fields {
		switch vt := field["value"].(type) {
		case string:
			result = append(result, SplitList(vt)...)
		case []any:
			for _, v := range vt {
				if s, ok := v.(string); ok {
					result = append(result, SplitList(s)...)
				}
			}
		}
	}
	return
}

// SplitList splits on new lines and commas, trimming and dropping empty entries.
func SplitList(value string) (result []string) {
	var entries = strings.FieldsFunc(value, func(r rune) bool {
		return r == '\n' || r == ','
	})
	for _, entry := range entries {
		if entry = strings.TrimSpace(entry); len(entry) > 0 {
			result = append(result, entry)
		}
	}
	return
}

// toBoolean accepts a bool, a boolean-like string or a field value list
// whose first element is one of those.
func toBoolean(intf any) (result bool, ok bool) {
	if list, isList := intf.([]any); isList {
		if len(list) == 0 {
			return
		}
		intf = list[0]
	}
	switch fv := intf.(type) {
	case bool:
		result, ok = fv, true
	case string:
		switch strings.ToLower(strings.TrimSpace(fv)) {
		case "1", "true", "ok", "yes":
			result, ok = true, true
		case "0", "false", "no":
			result, ok = false, true
		}
	}
	return
}

func toString(intf any) (result string, ok bool) {
	result, ok = intf.(string)
	return
}

// toInt64 reads SCIM numbers, which arrive from encoding/json as float64.
func toInt64(intf any) (result int64, ok bool) {
	switch iv := intf.(type) {
	case float64:
		result, ok = int64(iv), true
	case int:
		result, ok = int64(iv), true
	case int64:
		result, ok = iv, true
	case string:
		var err error
		result, err = strconv.ParseInt(strings.TrimSpace(iv), 10, 64)
		ok = err == nil
	}
	return
}

type Set[K comparable] map[K]struct{}

func NewSet[K comparable]() Set[K] {
	return make(Set[K])
}

func MakeSet[K comparable](keys []K) Set[K] {
	var ns = make(Set[K], len(keys))
	for _, k := range keys {
		ns.Add(k)
	}
	return ns
}

func (s Set[K]) Has(key K) (ok bool) {
	_, ok = s[key]
	return
}

func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}

func (s Set[K]) EqualTo(other Set[K]) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// Sorted returns the members of a string set in ascending order.
func Sorted(s Set[string]) []string {
	var result = make([]string, 0, len(s))
	for k := range s {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
