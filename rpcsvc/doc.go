// Package rpcsvc serves the marketplace over gRPC and provides the matching
// client. Proto definition: market.proto.
package rpcsvc
