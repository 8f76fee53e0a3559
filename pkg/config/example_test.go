package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/beanpool/pkg/config"
)

// ExampleNewContainerConfig demonstrates the stateless container defaults.
func ExampleNewContainerConfig() {
	cfg := config.NewContainerConfig("app")

	fmt.Printf("Max Size: %d\n", cfg.Defaults.MaxSize)
	fmt.Printf("Strict Pooling: %v\n", cfg.Defaults.StrictPooling)
	fmt.Printf("Access Timeout: %s\n", cfg.Defaults.AccessTimeout)
	fmt.Printf("Close Timeout: %s\n", cfg.Defaults.CloseTimeout)

	// Output:
	// Max Size: 10
	// Strict Pooling: true
	// Access Timeout: 30s
	// Close Timeout: 5m0s
}

// ExampleParse shows per-deployment overrides layered over the defaults.
func ExampleParse() {
	doc := []byte(`
defaults:
  max_size: 4
  access_timeout: 250ms
deployments:
  - id: OrderProcessor
    max_size: 2
  - id: ReportBuilder
    strict_pooling: false
`)

	cfg := config.NewContainerConfig("orders")
	if err := config.Parse(doc, cfg); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	for _, d := range cfg.Deployments {
		p := d.Resolve(cfg.Defaults)
		fmt.Printf("%s max=%d strict=%v timeout=%s\n", d.ID, p.MaxSize, p.StrictPooling, p.AccessTimeout)
	}

	// Output:
	// OrderProcessor max=2 strict=true timeout=250ms
	// ReportBuilder max=4 strict=false timeout=250ms
}
