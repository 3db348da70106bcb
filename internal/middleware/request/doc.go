package request

// Package request provides HTTP middleware components for request handling.
//
// It includes middleware for:
//   - Request ID generation and propagation
//   - Request timeout management
//   - Cancellation propagation: linking a request-scoped cancellation signal
//     to the connection's liveness, exposing it through an in-flight request
//     registry, and converting a cancellation-caused abort into the
//     client-closed-request (499) response
//
// The middleware in this package is designed to be used with standard
// http.Handler interfaces and can be easily chained together.
//
// Example usage:
//
//	handler := request.WithRequestID(
//		request.WithCancellation(reg)(
//			request.WithTimeout(5*time.Second)(
//				yourHandler,
//			),
//		),
//	)
