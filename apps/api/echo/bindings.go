package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/normbook/normbook/core"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=-date,value` to DB orderings; a leading "-" sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range core.SplitAndTrim(val) {
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
