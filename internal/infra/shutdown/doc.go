// Package shutdown runs ordered cleanup when the daemon is asked to stop.
//
// Hooks are registered as components start and run in reverse order, so
// the HTTP listener stops before the store it reads from is closed:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("store", func(ctx context.Context) error { return st.Close() })
//	err := h.Wait(ctx) // blocks until SIGINT, SIGTERM or ctx is done
package shutdown
