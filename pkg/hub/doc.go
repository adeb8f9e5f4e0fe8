// Package hub talks to the public Docker Hub v2 API.
//
// It knows how to fetch a single repository's metadata, how to walk the
// paginated listing of an organization's repositories, and how to map the
// raw JSON documents it gets back into Records with typed fields.
//
package hub
