// Package flows contains the orchestration for refresh, logout and request
// authentication.
//
// Each Run function takes a typed dependency struct and returns a result with
// a failure kind instead of a public error. The root engine owns every
// resource, wires the dependencies once and maps failure kinds onto its
// exported errors, metrics and audit events.
//
// Flows hold no state between calls and must not import the root package.
package flows
