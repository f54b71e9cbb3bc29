// Package handlers contains reusable HTTP building blocks for the casino
// server: health checks and middleware.
//
// # Health Checks
//
// CompositeHealthChecker runs named checks in parallel. Critical checks
// (the database) decide readiness; optional checks (the Redis cache) are
// reported but only degrade the status:
//
//	checker := handlers.NewCompositeHealthChecker("1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(pool))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    // answer 503 on /ready
//	}
//
// # Middleware
//
// Middleware share the MiddlewareFunc signature and compose with Chain:
//
//	h := handlers.ChainHandler(mux,
//	    handlers.RequestIDMiddleware,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)
package handlers
