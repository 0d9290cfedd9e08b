// Package rest mounts CRUD endpoints for an entity on an httputil.Router and
// translates their query parameters into a query.Descriptor run against a
// store.Store.
//
// Routes registered for an entity named posts:
//
//	Method key | Route              | Success
//	-----------|--------------------|------------------------------------------
//	gets       | GET /posts         | 200 {"data": [...], "meta": {...}}
//	get        | GET /posts/{id}    | 200 entity
//	post       | POST /posts        | 201 created entity
//	put        | PUT /posts/{id}    | 200 updated entity
//	delete     | DELETE /posts/{id} | 200 deleted entity
//
// Query parameters:
//
//	Parameter                          | Description
//	-----------------------------------|---------------------------------------------
//	?filters[age][gte]=18              | Filter, bracket syntax or a JSON document
//	?filters[or][0][a][eq]=x&...       | Boolean groups: and, or
//	?sort=createdAt:desc               | Order by one field, asc or desc
//	?page=2&pageSize=20                | Pagination (defaults 1 and 10)
//	?fields=id,title                   | Projection, also fields[]=id
//	?relations=comments,author         | Include related entities
//	?relationFields[comments]=id,body  | Projection of a relation
//	?relationFilters[comments]={...}   | Filter a relation, makes it required
//	?relationSort[comments]=id:desc    | Order a has-many relation
//
// Example usage:
//
//	api := rest.New(store, registry, rest.WithLogger(logger))
//	router := httputil.NewRouter()
//	if err := api.Register(router.Group("/api"), "posts", &rest.Options{
//		Methods: []rest.Method{rest.MethodList, rest.MethodGet},
//	}); err != nil {
//		log.Fatal(err)
//	}
package rest
