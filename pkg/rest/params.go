package rest

import (
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgapi/pkg/query"
	"github.com/mitchellh/mapstructure"
)

const (
	maxParams     = 1000
	maxParamDepth = 20
)

// Params is the decoded query string of a request.
type Params struct {
	Filters         any
	Sort            string
	Page            string
	PageSize        string
	Fields          []string
	Relations       []string
	RelationFields  map[string][]string
	RelationFilters map[string]any
	RelationSort    map[string]string
}

// scalar parameters, decoded with mapstructure from the plain tree
type rawParams struct {
	Sort           string              `mapstructure:"sort"`
	Page           string              `mapstructure:"page"`
	PageSize       string              `mapstructure:"pageSize"`
	Fields         []string            `mapstructure:"fields"`
	Relations      []string            `mapstructure:"relations"`
	RelationFields map[string][]string `mapstructure:"relationFields"`
	RelationSort   map[string]string   `mapstructure:"relationSort"`
}

// ParseParams decodes rawQuery. Nested parameters use bracket syntax
// (filters[and][0][age][gte]=18, fields[]=id); filters and
// relationFilters[<rel>] may also carry a JSON document. List parameters accept
// repeated keys and comma separated values.
func ParseParams(rawQuery string) (Params, error) {
	tree, err := parseBrackets(rawQuery)
	if err != nil {
		return Params{}, err
	}

	var raw rawParams
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(lastElementHook),
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return Params{}, err
	}
	if err := dec.Decode(tree.Plain()); err != nil {
		return Params{}, fmt.Errorf("decode query parameters: %w", err)
	}

	p := Params{
		Sort:      raw.Sort,
		Page:      raw.Page,
		PageSize:  raw.PageSize,
		Fields:    splitList(raw.Fields),
		Relations: splitList(raw.Relations),
	}
	if raw.RelationFields != nil {
		p.RelationFields = make(map[string][]string, len(raw.RelationFields))
		for rel, fields := range raw.RelationFields {
			if f := splitList(fields); f != nil {
				p.RelationFields[rel] = f
			}
		}
	}
	if raw.RelationSort != nil {
		p.RelationSort = raw.RelationSort
	}

	if v, ok := tree.Get("filters"); ok {
		if p.Filters, err = filterValue(v); err != nil {
			return Params{}, fmt.Errorf("filters: %w", err)
		}
	}
	if v, ok := tree.Get("relationFilters"); ok {
		obj, ok := v.(*query.Object)
		if !ok {
			return Params{}, fmt.Errorf("relationFilters must be keyed by relation")
		}
		p.RelationFilters = make(map[string]any, obj.Len())
		for _, rel := range obj.Keys() {
			rv, _ := obj.Get(rel)
			f, err := filterValue(rv)
			if err != nil {
				return Params{}, fmt.Errorf("relationFilters[%s]: %w", rel, err)
			}
			p.RelationFilters[rel] = f
		}
	}
	return p, nil
}

// filterValue accepts a bracket tree as is and decodes a string as JSON. An
// empty string means no filter.
func filterValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return query.DecodeJSON([]byte(t))
	case []any:
		// filters given twice: the last one wins
		if len(t) == 0 {
			return nil, nil
		}
		return filterValue(t[len(t)-1])
	default:
		return v, nil
	}
}

// lastElementHook lets a repeated scalar parameter (sort=a&sort=b) decode into
// a string field, keeping the last value.
func lastElementHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Slice {
		return data, nil
	}
	v := reflect.ValueOf(data)
	if v.Len() == 0 {
		return "", nil
	}
	return fmt.Sprint(v.Index(v.Len() - 1).Interface()), nil
}

// splitList flattens comma separated elements. It returns nil when nothing
// is left so that defaults still apply.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseBrackets builds an ordered tree out of a query string in the format
// produced by the qs package. Objects whose keys are all indices become lists.
func parseBrackets(rawQuery string) (*query.Object, error) {
	root := query.NewObject()
	pairs := strings.Split(rawQuery, "&")
	if len(pairs) > maxParams {
		pairs = pairs[:maxParams]
	}
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		rawKey, rawVal, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("invalid query parameter %q: %w", rawKey, err)
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", key, err)
		}
		path := splitKey(key)
		if len(path) == 0 || path[0] == "" {
			continue
		}
		insert(root, path, val)
	}

	out := query.NewObject()
	for _, k := range root.Keys() {
		v, _ := root.Get(k)
		out.Set(k, normalize(v))
	}
	return out, nil
}

// splitKey turns a[b][0][] into [a b 0 ""]. Anything past maxParamDepth or
// after an unbalanced bracket stays part of the last segment.
func splitKey(key string) []string {
	head, rest, found := strings.Cut(key, "[")
	if !found || head == "" {
		return []string{key}
	}
	path := []string{head}
	rest = "[" + rest
	for rest != "" && len(path) < maxParamDepth {
		if rest[0] != '[' {
			break
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	if rest != "" {
		path[len(path)-1] += rest
	}
	return path
}

func insert(obj *query.Object, path []string, val string) {
	key := path[0]
	if key == "" {
		key = strconv.Itoa(obj.Len())
	}

	if len(path) == 1 {
		switch cur, _ := obj.Get(key); t := cur.(type) {
		case nil:
			obj.Set(key, val)
		case string:
			obj.Set(key, []any{t, val})
		case []any:
			obj.Set(key, append(t, val))
		default:
			obj.Set(key, val)
		}
		return
	}

	cur, _ := obj.Get(key)
	child, ok := cur.(*query.Object)
	if !ok {
		child = query.NewObject()
		// a scalar given before the nested form is kept as the first element
		switch t := cur.(type) {
		case string:
			child.Set("0", t)
		case []any:
			for _, v := range t {
				child.Set(strconv.Itoa(child.Len()), v)
			}
		}
		obj.Set(key, child)
	}
	insert(child, path[1:], val)
}

func normalize(v any) any {
	obj, ok := v.(*query.Object)
	if !ok {
		return v
	}

	keys := obj.Keys()
	indices := make([]int, 0, len(keys))
	for _, k := range keys {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || strconv.Itoa(i) != k {
			indices = nil
			break
		}
		indices = append(indices, i)
	}

	if indices != nil && len(keys) > 0 {
		order := slices.Clone(keys)
		slices.SortStableFunc(order, func(a, b string) int {
			ia, _ := strconv.Atoi(a)
			ib, _ := strconv.Atoi(b)
			return ia - ib
		})
		list := make([]any, 0, len(order))
		for _, k := range order {
			item, _ := obj.Get(k)
			list = append(list, normalize(item))
		}
		return list
	}

	out := query.NewObject()
	for _, k := range keys {
		item, _ := obj.Get(k)
		out.Set(k, normalize(item))
	}
	return out
}
