// Package config provides the container configuration for beanpool.
//
// A single ContainerConfig describes logging, observability, the default pool
// policy and the list of deployments. Each deployment inherits the defaults
// and may override any field of the pool policy.
//
// # Usage
//
//	cfg := config.NewContainerConfig("app")
//	if err := config.Load("beanpool.yaml", cfg); err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
//	for _, d := range cfg.Deployments {
//		policy := d.Resolve(cfg.Defaults)
//		// deploy with policy
//	}
//
// # File format
//
//	name: orders
//	defaults:
//	  max_size: 10
//	  strict_pooling: true
//	  access_timeout: 30s
//	deployments:
//	  - id: OrderProcessor
//	    bean: echo
//	    max_size: 2
//	    min_size: 1
//	  - id: ReportBuilder
//	    strict_pooling: false
//
// # Environment Variable Substitution
//
// Load replaces ${VAR_NAME} with the value of the environment variable before
// parsing, so secrets and per-environment sizes can be kept out of the file.
//
// # Validation
//
// Validate rejects negative sizes and durations, a min_size above max_size,
// duplicate or empty deployment ids and sample rates outside [0, 1]. A
// max_size of 0 is valid: a strict pool then always times out and a
// non-strict pool always constructs and destroys.
package config
