package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the comma separated fields of the ordering query param. A "-" prefix means descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// userQuery holds the query params of the users listing.
type userQuery struct {
	Search   string      `query:"search"`
	Roles    []user.Role `query:"role"`
	IsActive string      `query:"is_active"`
}

func (q userQuery) filter() *user.QueryFilter {
	filter := &user.QueryFilter{Search: q.Search, Roles: q.Roles}
	if active, err := strconv.ParseBool(q.IsActive); err == nil {
		filter.IsActive = &active
	}
	return filter
}
