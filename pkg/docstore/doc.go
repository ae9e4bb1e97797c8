// Package docstore provides types, interfaces, and helpers for working with
// a multi-tenant document store service.
//
// # Overview
//
// The docstore package defines the domain types (Database, Container,
// FeedPage, ItemResponse) and the interfaces for resource-oriented clients
// (DatabasesClient, ContainersClient, ItemsClient). A concrete
// implementation of these clients is provided by the dsclient package, which
// wires configuration, transport, authentication, and the request pipeline.
// Most consumers should import dsclient to construct a client and then
// interact with the resource client interfaces exposed here.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/themajix/docstore-client/pkg/docstore"
//	  "github.com/themajix/docstore-client/pkg/dsclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := dsclient.New(&docstore.Config{Endpoint: "https://db.example.com"})
//	  if err != nil { log.Fatal(err) }
//
//	  resp, err := cli.Items().Read(ctx, "/dbs/orders/colls/open", "order-1",
//	    &docstore.ItemOptions{PartitionKey: "tenant-a"})
//	  if err != nil { log.Fatal(err) }
//	  _ = resp
//	}
//
// # Queries and feeds
//
// Use QueryDefinition to express parameterized queries, optionally with a
// globally-ordering field for cross-partition execution. Feed results come
// back as a FeedIterator:
//
//	query := docstore.NewQuery("SELECT * FROM c WHERE c.status = @s").
//	  WithParameter("@s", "open").
//	  WithOrderBy("createdAt", false)
//
//	it, err := cli.Items().Query(ctx, "/dbs/orders/colls/open", query,
//	  &docstore.FeedOptions{MaxConcurrency: 4})
//	if err != nil { /* handle error */ }
//
//	for it.HasMore() {
//	  page, err := it.NextPage(ctx)
//	  if err != nil { break }
//	  _ = page.Items
//	}
//
// Iterators can be resumed across processes by persisting
// it.ContinuationToken() and handing it back in FeedOptions. FetchAll,
// ForEachItem, and StreamPages cover the common consumption patterns.
//
// # Errors
//
// Service errors are represented by ServiceError; transport failures by
// TransportError. Helpers such as IsNotFound, IsConflict,
// IsPreconditionFailed, and IsThrottled make it easy to branch on common
// cases. Both carry the attempt count of the final try.
//
// # Pipeline and caching
//
// Every operation flows through an ordered handler chain (telemetry, retry,
// session, authorization) ending at the transport; see Chain and Handler.
// The package also provides a pluggable Cache abstraction with memory and
// NATS KV backends for point reads. The dsclient package composes these
// pieces for a sensible default client; applications with advanced needs can
// use the primitives directly.
//
// # Concurrency control
//
// ReadModifyWrite implements the optimistic read-modify-write loop over an
// ItemsClient, retrying on version-precondition failures up to a bound.
package docstore
