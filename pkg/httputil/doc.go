// Package httputil provides JSON response writers, request parsing helpers
// and the middleware chain shared by the warden HTTP servers.
//
// # Responses
//
//	httputil.WriteJSON(w, http.StatusOK, view)
//	httputil.WriteCreated(w, created)
//	httputil.WriteFieldError(w, http.StatusBadRequest, "expiresAt", "must be in the future")
//
// Every error body has the shape {"error": "...", "field": "..."} with field
// omitted when the error is not tied to an input.
//
// # Requests
//
//	var req CreateRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//	    return // 400 already written
//	}
//
// Unknown JSON fields are rejected.
//
// # Middleware
//
//	handler := httputil.Chain(
//	    httputil.RequestIDMiddleware,
//	    httputil.LoggingMiddleware(logger),
//	    httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
