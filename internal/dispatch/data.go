package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chriserin/gherkit/internal/response"
)

func registerData(t *Table) {
	t.mustRegister("data.set", `I set variable "{name}" to "{value}"`, dataSet)
	t.mustRegister("data.save.row", `I save the query result row "{row}" column "{column}" as "{variable}"`, dataSaveRow)
}

func dataSet(_ context.Context, sc *Scenario, c Call) error {
	sc.store.Set(c.Args[0], c.Args[1])
	return nil
}

func dataSaveRow(_ context.Context, sc *Scenario, c Call) error {
	row, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return fmt.Errorf("row index %q is not a number", c.Args[0])
	}
	v, err := response.CaptureRow(sc.last, row, c.Args[1])
	if err != nil {
		return err
	}
	sc.store.Set(c.Args[2], v)
	return nil
}
