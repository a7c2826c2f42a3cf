/*
Package metrics implements the collection of the route lookup, cache and
reload metrics.

The collected metrics include the time of looking up routes, the outcome
of the lookups (matched route, fallback handler, no route), the number of
written and kept cache records, the number of files deleted by the cache
cleanup, the size of the route index, and the number and duration of the
route reloads.

The metrics are exposed in the Prometheus format on the support listener,
under the /metrics path.
*/
package metrics
