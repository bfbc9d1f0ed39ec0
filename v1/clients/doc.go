// Package clients manages the clients a worker passes to its handlers, such
// as database pools, and reports their health.
//
// Hooks registered on a State start in order before the worker consumes and
// stop in reverse order after it drained:
//
//	state := clients.NewState(clients.Config{}, log)
//	_ = state.RegisterPgxPool("orders-db", dbCfg)
//	state.AddCheck(clients.Check{Name: "rabbit", Fn: pool.Ping})
//
//	if err := state.Startup(ctx); err != nil {
//		return err
//	}
//	defer state.Shutdown(context.Background())
//
// Health runs every check concurrently and retries a failing check a few
// times before reporting it. The health endpoint serves its result.
package clients
