// Package httpmw provides HTTP middleware for the public listener.
//
// httpserver.NewHandler composes it outermost first: security headers,
// request ID, panic recovery, OTel tracing, metrics, request logger,
// access log, route annotation and trace response headers, then the chi
// router.
//
// Request bodies, query values and most headers never reach the logs.
package httpmw
