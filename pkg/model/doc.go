// Package model defines the wire types shared by the report builder client:
// the template configuration served by the backend, the generate request
// built from the operator's edits, and the opaque artifact returned in
// exchange. Replacement values are plain strings; the client never inspects
// them beyond copying and submitting.
package model
