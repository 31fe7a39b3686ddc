// Package health provides the probes behind the ops listener's liveness and
// readiness endpoints.
//
// Readiness is the AND ([All]) of the [ShutdownGate] and a [Database] probe
// that pings the pool, so a draining process or an unreachable database
// both take the instance out of rotation. Liveness only reports that the
// process is answering.
package health
