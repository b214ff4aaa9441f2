// Package natsclient wraps the NATS Go client with the connection
// lifecycle management the key-value backend needs: explicit connect with
// timeout, automatic reconnection (by default unlimited attempts with a
// fixed wait between them), JetStream context
// creation and KV bucket provisioning.
//
// The package also centralises KV error classification. JetStream reports
// compare-and-swap failures through a pair of conditions (key exists on
// create, wrong last sequence on update); IsKVConflict folds both into one
// predicate so callers implement a single retry path.
//
// Basic usage:
//
//	client, err := natsclient.New("nats://localhost:4222",
//		natsclient.WithName("sync-storage"),
//		natsclient.WithTimeout(5*time.Second))
//	if err != nil { ... }
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close()
//
//	kv, err := client.EnsureKeyValue(ctx, "sync_storage_items")
//
// The test harness in test_client.go starts a disposable NATS server in a
// container with JetStream enabled; integration tests use it instead of a
// shared broker.
package natsclient
