// CLAUDE:SUMMARY Waits for a subtree to gain new elements matching a selector, resolving on mutation or after a bounded timeout.
// Package waiter resolves once a container holds enough elements matching
// a selector. Host pages inject repeating form sections asynchronously;
// waiting on mutations replaces fixed delays.
package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/formfill/dom"
)

const (
	DefaultTimeout = 8 * time.Second
	DefaultMinNew  = 1
)

// Options tunes WaitForGrowth. Zero values take the defaults.
type Options struct {
	Timeout time.Duration
	MinNew  int
}

// WaitForGrowth returns the elements of container matching selector once
// there are at least baseline+MinNew of them. When the threshold already
// holds it returns at once without subscribing. Reaching the timeout is not
// an error: the current matches are returned. A cancelled context returns
// the current matches with the context error.
func WaitForGrowth(ctx context.Context, container dom.Element, selector string, baseline int, opts Options) ([]dom.Element, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinNew <= 0 {
		opts.MinNew = DefaultMinNew
	}
	want := baseline + opts.MinNew

	matches, err := container.QueryAll(selector)
	if err != nil {
		return nil, fmt.Errorf("waiter: query %q: %w", selector, err)
	}
	if len(matches) >= want {
		return matches, nil
	}

	sub, err := container.Observe()
	if err != nil {
		return nil, fmt.Errorf("waiter: observe: %w", err)
	}
	defer sub.Close()

	// A mutation between the first query and the subscription would be
	// missed; query once more now that mutations are observed.
	if matches, err = container.QueryAll(selector); err != nil {
		return nil, fmt.Errorf("waiter: query %q: %w", selector, err)
	}
	if len(matches) >= want {
		return matches, nil
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return matches, ctx.Err()
		case <-timer.C:
			return matches, nil
		case <-sub.C():
			if matches, err = container.QueryAll(selector); err != nil {
				return nil, fmt.Errorf("waiter: query %q: %w", selector, err)
			}
			if len(matches) >= want {
				return matches, nil
			}
		}
	}
}

// Count returns the number of elements of scope matching selector, 0 on a
// query error.
func Count(scope dom.Queryer, selector string) int {
	els, err := scope.QueryAll(selector)
	if err != nil {
		return 0
	}
	return len(els)
}
