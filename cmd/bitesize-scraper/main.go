// Package main provides the bitesize-scraper CLI.
//
// bitesize-scraper crawls a structured educational website and saves its
// learning pages as plain-text documents with a provenance header.
//
// Usage:
//
//	bitesize-scraper crawl [start-url...]
//	bitesize-scraper validate -c config.yaml
//
// See --help for all available options.
package main

func main() {
	Execute()
}
