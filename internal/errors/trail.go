package errors

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	defaultMaxCrumbs = 50
	devMaxCrumbs     = 500
)

var devMode atomic.Bool

// SetDevMode raises the breadcrumb limit for local debugging.
func SetDevMode(enabled bool) {
	devMode.Store(enabled)
}

func maxCrumbs() int {
	if devMode.Load() {
		return devMaxCrumbs
	}
	return defaultMaxCrumbs
}

// Crumb is one piece of context recorded while an error bubbles up.
type Crumb struct {
	Msg  string    `json:"msg"`
	Ctx  any       `json:"ctx,omitempty"`
	Time time.Time `json:"timestamp"`
}

// TrailError carries the original error plus the breadcrumbs added on the way up.
type TrailError struct {
	err       error
	crumbs    []Crumb
	truncated int
}

func (e *TrailError) Error() string {
	if len(e.crumbs) == 0 {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.crumbs[len(e.crumbs)-1].Msg, e.err.Error())
}

func (e *TrailError) Unwrap() error {
	return e.err
}

// Trace records msg and ctx on err. A nil err stays nil.
func Trace(err error, msg string, ctx any) error {
	if err == nil {
		return nil
	}
	crumb := Crumb{Msg: msg, Ctx: ctx, Time: time.Now()}

	var existing *TrailError
	if errors.As(err, &existing) {
		next := &TrailError{
			err:       err,
			crumbs:    append(append([]Crumb{}, existing.crumbs...), crumb),
			truncated: existing.truncated,
		}
		if direct, ok := err.(*TrailError); ok {
			next.err = direct.err
		}
		next.trim()
		return next
	}
	return &TrailError{err: err, crumbs: []Crumb{crumb}}
}

// trim drops the oldest crumbs beyond the limit and keeps count of what was dropped.
func (e *TrailError) trim() {
	limit := maxCrumbs()
	if len(e.crumbs) <= limit {
		return
	}
	drop := len(e.crumbs) - limit
	e.truncated += drop
	e.crumbs = e.crumbs[drop:]
}

// Crumbs returns the breadcrumbs of err, oldest first. A truncation marker leads the
// list when older entries were dropped.
func Crumbs(err error) []Crumb {
	var trail *TrailError
	if !errors.As(err, &trail) {
		return nil
	}
	out := make([]Crumb, 0, len(trail.crumbs)+1)
	if trail.truncated > 0 {
		out = append(out, Crumb{
			Msg:  fmt.Sprintf("... %d earlier entries truncated", trail.truncated),
			Time: trail.crumbs[0].Time,
		})
	}
	return append(out, trail.crumbs...)
}
