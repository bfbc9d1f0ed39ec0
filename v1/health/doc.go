// Package health exposes the liveness endpoint of a worker.
//
// GET /health runs a CheckFunc and answers 200 when it reports nothing. When
// a dependency is unhealthy the handler logs the error map and answers 500
// with the map as JSON body. Requests to any other path get an empty 200, so
// load balancers probing "/" keep working.
package health
