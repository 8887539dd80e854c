/*
Package fibserver is a small HTTP/1.1 server that computes Fibonacci
numbers of arbitrary size.

GET /fib/<n> answers with the decimal value of f(n) as text/plain. Every
other GET, including "/" and paths that do not resolve, answers with
"Hello World!". Other methods answer 501 Not Implemented.

Quick Start

	go run ./cmd/fib-server -port 8081 -max-fib 100000
	curl http://localhost:8081/fib/100
	354224848179261915075

Modules

  - app: wiring and lifecycle (signals, graceful shutdown)
  - config: defaults, JSON file, FIBSERVER_* environment and flags
  - logging: slog handler construction
  - core: listener, per-connection workers, statistics
  - core/http: incremental request parser, request record, responses
  - core/router: route table and path resolution
  - core/fib: three-slot iterative Fibonacci engine
  - core/bignum: decimal strings and schoolbook addition
  - core/pools: byte, response buffer and worker record pools, GC tuning
  - core/sockopt: TCP options for accepted connections

Each connection is served by its own goroutine with blocking reads.
Keep-alive is honoured per request; pipelined requests are answered in
order.
*/
package fibserver
