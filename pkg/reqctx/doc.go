// Package reqctx carries request-scoped values through context.Context:
// request metadata, the verified token claims, trace ids and the domain
// record (appointment, withdrawal) an operation is working on. The log
// handler in pkg/logs reads all of them.
package reqctx
