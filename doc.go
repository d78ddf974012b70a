// Package bioetl extracts entities from the ChEMBL REST API into
// deterministic, byte-stable tables.
//
// Repeated runs over the same upstream release produce identical files:
// identifiers are normalized, rows are stably sorted, nested values are
// serialized with a fixed key order, and every row carries content hashes.
//
// # Architecture
//
// An extraction is described by a Descriptor (pkg/extraction) and executed by
// the generic Engine in one of two modes:
//
//  1. Batch mode: identifiers are normalized, chunked under both a batch size
//     and a maximum URL length, and fetched with "<id>__in" filters.
//  2. Pagination mode: the collection is walked through page_meta.next links
//     until the cursor is exhausted or the record limit is reached.
//
// Before fetching, a release handshake (pkg/release) reads the ChEMBL
// version from the status endpoint so every row can be stamped with it.
// After fetching, descriptor post-processors reshape nested values
// (pkg/serialize), pkg/determinism sorts and hashes the table, and
// pkg/output writes CSV or Parquet plus a meta.yaml with checksums.
//
// # Entities
//
// The entity packages under pkg/entities register themselves on import:
//
//	import (
//	    "github.com/ajitpratap0/bioetl/internal/pipeline"
//	    "github.com/ajitpratap0/bioetl/pkg/config"
//
//	    _ "github.com/ajitpratap0/bioetl/pkg/entities/document"
//	)
//
//	cfg, err := config.LoadPipeline(config.LoadOptions{Path: "document.yaml"})
//	if err != nil {
//	    return err
//	}
//	runner, err := pipeline.NewRunner(cfg)
//	if err != nil {
//	    return err
//	}
//	report, err := runner.Run(ctx)
//
// # Failure handling
//
// Configuration errors are reported before any network call and always
// abort. A failed batch or page chain is logged and skipped, keeping the
// records already fetched, unless runtime.fail_fast is set.
//
// # Configuration
//
// Pipelines are YAML files layered over built-in defaults. ${VAR}
// references are substituted from the environment and BIOETL_* variables
// override individual keys, e.g. BIOETL_RUNTIME_LIMIT=100.
package bioetl
