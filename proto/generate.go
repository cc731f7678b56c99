// Package proto holds the gRPC contract shared with the Python LLM service.
// Stubs are generated into this directory; run go generate after editing
// llm.proto.
package proto

//go:generate protoc --go_out=. --go_opt=paths=source_relative --go-grpc_out=. --go-grpc_opt=paths=source_relative llm.proto
