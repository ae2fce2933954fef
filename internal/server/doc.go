// Package server hosts the Fiber HTTP service and its middleware chain:
// panic recovery, request IDs, and the uniform security headers every
// response carries. Content requests are handed to an injected
// ContentHandler; paths under "/-/" are reserved for diagnostics registered
// by the routes subpackage and never reach the content root.
package server
