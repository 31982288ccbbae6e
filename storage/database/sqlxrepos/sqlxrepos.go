// Package sqlxrepos implements the domain repositories with jmoiron/sqlx.
// Queries are written with `?` bindvars and rebound for the driver in use (postgres or sqlite3).
package sqlxrepos

import (
	"strings"

	"github.com/odinschool/odin/core"
)

// orderBy builds an ORDER BY clause out of the orderings whose field is allowed. Others are ignored.
func orderBy(ordering []core.DBOrdering, allowed map[string]bool) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if allowed[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}
