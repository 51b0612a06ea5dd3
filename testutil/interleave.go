package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Interleave runs stmt once, on the connection of the statement it hooks,
// right before the first query ("query") or update ("update") on table. It
// plays a writer that commits between a service's read and its write. The
// returned counter reports whether it fired.
func Interleave(t *testing.T, db *gorm.DB, op, table, stmt string, args ...any) *atomic.Int32 {
	t.Helper()
	fired := &atomic.Int32{}
	fn := func(d *gorm.DB) {
		if d.Statement.Table != table || !fired.CompareAndSwap(0, 1) {
			return
		}
		if _, err := d.Statement.ConnPool.ExecContext(d.Statement.Context, stmt, args...); err != nil {
			_ = d.AddError(err)
		}
	}
	name := fmt.Sprintf("testutil:interleave_%d", dbSeq.Add(1))
	var err error
	switch op {
	case "query":
		err = db.Callback().Query().Before("gorm:query").Register(name, fn)
	case "update":
		err = db.Callback().Update().Before("gorm:update").Register(name, fn)
	default:
		t.Fatalf("Interleave: unknown op %q", op)
	}
	require.NoError(t, err)
	return fired
}

// Race starts n goroutines running fn(i) together and waits for all of them.
// It returns the error of each call by index.
func Race(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}
