// Package config provides configuration management for bioetl pipelines.
//
// # Layering
//
// LoadPipeline resolves a PipelineConfig from four layers, lowest first:
//
//  1. Built-in defaults (NewPipelineConfig)
//  2. A YAML file, with ${VAR_NAME} environment substitution
//  3. BIOETL_* environment variables (dots become underscores)
//  4. Explicit overrides, typically CLI flags
//
// The merged configuration is validated before it is returned, so invalid
// settings surface before any network activity.
//
// # Entity Defaults
//
// Each entity contributes an EntityDefaults value. EntityDefaults.Resolve
// combines it with the run's SourceConfig into an Effective configuration:
// zero values in the source section fall back to the defaults, the page size
// is capped by both the defaults and the entity descriptor, and the batch
// size never exceeds the page size.
//
// # Example Configuration
//
//	name: documents-nightly
//	entity: document
//	source:
//	  base_url: https://www.ebi.ac.uk/chembl/api/data
//	  page_size: 100
//	  handshake:
//	    enabled: true
//	    timeout: 5s
//	runtime:
//	  limit: 0
//	  fail_fast: false
//	http:
//	  bearer_token: ${CHEMBL_TOKEN}
//	determinism:
//	  sort_by:
//	    - column: document_chembl_id
//	  hash_algorithm: sha256
//	output:
//	  dir: ./out
//	  format: parquet
package config
