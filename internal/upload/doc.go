// Package upload stages uploaded binary payloads before persistence.
//
// Staging writes a payload to a path-addressable file in a process-wide
// temporary area so the store can reference it by path without owning the
// bytes. Names combine the sanitized original stem, a timestamp and a
// random fragment, so concurrent uploads of identically named files never
// collide.
package upload
