// Package ent holds the generated entity client. Only the schema
// definitions under ./schema are committed; run go generate to produce
// the client code.
package ent

//go:generate go run -mod=mod entgo.io/ent/cmd/ent generate ./schema
