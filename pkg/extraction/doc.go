// Package extraction runs descriptor-driven extraction against a paginated
// REST API.
//
// An entity declares a Descriptor: its endpoint, filter parameter, item
// keys, mandatory fields, sort key, defaults and hooks. The Engine turns a
// descriptor into two entry points:
//
//	res, err := engine.ExtractAll(ctx, src)          // follow page_meta.next
//	res, err := engine.ExtractByIDs(ctx, src, ids)   // URL-bounded batches
//
// Both resolve the source configuration, build a Context (running the
// release handshake), fetch records sequentially, apply the record
// transform, assemble a table, run post-processors in order, sort by the
// descriptor sort key and log a summary. A disabled source or a dry run
// returns the empty frame (or the DryRunHandler's table) as is, without a
// fetch, post-processing or sort.
//
// # Partial failures
//
// A failed batch, or a failed page chain in ExtractAll, is logged with the
// offending identifiers or endpoint and extraction continues with whatever
// was fetched. Setting runtime.fail_fast returns the first such error
// instead. Configuration errors always abort before any request is made.
//
// # Batching
//
// Batcher.Chunk never reorders its input; ExtractByIDs trims, de-duplicates
// and sorts identifiers first so fetch order is reproducible. A batch of
// more than one identifier never exceeds the maximum encoded query length;
// an identifier too long on its own is still requested alone.
package extraction
