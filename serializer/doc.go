// Package serializer converts request entities to bytes and response content
// back to values. JSON and YAML implement both directions; Form encodes
// url-encoded bodies; Auto picks a deserializer from the content type.
package serializer
