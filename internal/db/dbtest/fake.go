// Package dbtest provides an in-memory db.Session for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jacobarthurs/pginsights/internal/db"
)

type response struct {
	fragment string
	rows     []db.Row
	err      error
	panicMsg string
}

// Fake answers statements with canned rows chosen by the first registered
// SQL fragment the statement contains. Unmatched statements return no rows.
type Fake struct {
	mu        sync.Mutex
	responses []response
	calls     []string
	explain   []byte
	closed    int
}

func New() *Fake {
	return &Fake{}
}

// On registers rows returned for statements containing fragment.
func (f *Fake) On(fragment string, rows ...db.Row) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{fragment: fragment, rows: rows})
	return f
}

// Fail registers an error returned for statements containing fragment.
func (f *Fake) Fail(fragment string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{fragment: fragment, err: err})
	return f
}

// Panic makes statements containing fragment panic with msg.
func (f *Fake) Panic(fragment, msg string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{fragment: fragment, panicMsg: msg})
	return f
}

// Explain sets the document returned by ExplainJSON.
func (f *Fake) Explain(doc string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explain = []byte(doc)
	return f
}

func (f *Fake) Execute(_ context.Context, sql string, _ ...any) ([]db.Row, error) {
	f.mu.Lock()
	f.calls = append(f.calls, strings.TrimSpace(sql))
	var matched *response
	for i := range f.responses {
		if strings.Contains(sql, f.responses[i].fragment) {
			matched = &f.responses[i]
			break
		}
	}
	f.mu.Unlock()

	if matched == nil {
		return nil, nil
	}
	if matched.panicMsg != "" {
		panic(matched.panicMsg)
	}
	return matched.rows, matched.err
}

func (f *Fake) ExplainJSON(_ context.Context, sql string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "EXPLAIN "+strings.TrimSpace(sql))
	if f.explain == nil {
		return nil, fmt.Errorf("no plan configured")
	}
	return f.explain, nil
}

func (f *Fake) Kind() string {
	return db.KindPostgreSQL
}

func (f *Fake) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Calls returns every statement received, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Executed reports whether any statement contained fragment.
func (f *Fake) Executed(fragment string) bool {
	for _, c := range f.Calls() {
		if strings.Contains(c, fragment) {
			return true
		}
	}
	return false
}

// Closed returns how many times Close was called.
func (f *Fake) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
