// Package query compiles declarative, client supplied query parameters into a
// storage agnostic Descriptor.
//
// Filters are JSON-like trees with a single root key, either a field or a
// boolean group:
//
//	{"age": {"gte": 18}}
//	{"and": [{"age": {"gte": 18}}, {"age": {"lt": 65}}]}
//	{"or": [{"name": {"startsWith": "A"}, "active": {"eq": true}}, {"role": {"in": ["admin"]}}]}
//
// Supported operators:
//
//	Class    | Operators
//	---------|------------------------------------------------------------
//	equality | eq ne is not col
//	range    | gt gte lt lte between notBetween
//	set      | all in notIn
//	pattern  | like notLike startsWith endsWith substring iLike notILike
//	         | regexp notRegexp iRegexp notIRegexp
//	match    | any match
//
// Sort directives look like "name:desc". Relations are included by name, each
// with its own projection, filter and sort, e.g. relations=comments together
// with relationFields[comments]=id,text.
//
// Example:
//
//	var c query.Compiler
//	d, page, err := c.Compile("users", query.Input{
//		Filters:  filters,
//		Sort:     "age:asc",
//		Page:     "2",
//		PageSize: "5",
//	})
package query
