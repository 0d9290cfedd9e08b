package query

// Compiler translates declarative request parameters into a Descriptor. The
// zero value is ready to use: last operator wins, no strict operator check, no
// page size cap. A Compiler holds no per-request state and is safe for
// concurrent use.
type Compiler struct {
	Merge           MergePolicy
	Strict          bool // reject operators outside the supported set
	MaxFilterDepth  int  // nesting limit for boolean groups, default 4
	MaxIncludeDepth int  // levels of a dotted relation path, default 1
	MaxPageSize     int  // 0 means no cap
	Catalog         Catalog
}

// Input is the parsed parameter set of a single request.
type Input struct {
	Filters      any
	Sort         string
	Page         string
	PageSize     string
	Fields       []string
	Relations    RelationSpec
	WithoutPages bool // skip Limit / Offset, used for single entity lookups
}

// Compile assembles the full Descriptor for entity. The returned Page is only
// meaningful when in.WithoutPages is false.
func (c Compiler) Compile(entity string, in Input) (Descriptor, Page, error) {
	where, err := c.Filter(in.Filters)
	if err != nil {
		return Descriptor{}, Page{}, err
	}
	include, err := c.Include(entity, in.Relations)
	if err != nil {
		return Descriptor{}, Page{}, err
	}
	d := Descriptor{
		Where:      where,
		Order:      c.Sort(in.Sort),
		Attributes: in.Fields,
		Include:    include,
	}
	if in.WithoutPages {
		return d, Page{}, nil
	}
	page := c.Paginate(in.Page, in.PageSize)
	d.Limit = page.Limit
	d.Offset = page.Offset
	return d, page, nil
}
