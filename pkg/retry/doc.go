// Package retry provides exponential backoff with jitter for operations that
// fail transiently, such as opening a database connection while the server
// restarts.
//
// Basic usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    conn, err = pgx.Connect(ctx, dsn)
//	    return err
//	})
//
// Custom classification:
//
//	err := retry.DoWithRetryable(ctx, cfg, fn, func(err error) bool {
//	    return isBusy(err) || retry.DefaultRetryable(err)
//	})
//
// Now and After in Config replace the clock in tests.
package retry
