/*
Package health defines a small, generic health-check contract reused across
Stash's cache subsystem.

A Checker exposes a single-shot Check that returns a Result at one of three
levels: Healthy, Degraded, or Unhealthy. pkg/telemetry implements Checker by
probing the active store with a known-absent key and comparing the running
hit rate against a configured minimum:

  - probe error                  -> Unhealthy
  - no requests observed yet     -> Healthy (nothing to be degraded about)
  - hit rate >= minimum hit rate -> Healthy
  - hit rate <  minimum hit rate -> Degraded

Status accumulates repeated Results behind a retry threshold (Config.Retries)
for callers that want to debounce a single bad probe before flipping an
external readiness signal, the same shape a load balancer or orchestrator
expects from a liveness/readiness endpoint.
*/
package health
