package main

import (
	"flag"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/typefence/typefence/pkg/compile"
	"github.com/typefence/typefence/pkg/diagnose"
	"github.com/typefence/typefence/pkg/schema"
	"github.com/typefence/typefence/pkg/spec"
)

// loadSpec builds the raw specification from either a JSON Schema file or
// a YAML/JSON example document.
func loadSpec(schemaFile, exampleFile string) (any, error) {
	if schemaFile != "" {
		data, err := os.ReadFile(schemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		return schema.FromJSONSchema(data)
	}
	data, err := os.ReadFile(exampleFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read example file: %w", err)
	}
	return schema.FromExample(data)
}

// checkFile decodes one document and checks it against the compiled
// specification, printing a diagnostic on failure.
func checkFile(ck *compile.Checker, tree *spec.Tree, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("FAIL %s: %v\n", path, err)
		return false
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		fmt.Printf("FAIL %s: %v\n", path, err)
		return false
	}
	// The exhaustive reporter is authoritative for the verdict here; the
	// sampled checker alone could accept a document with a bad element.
	if d := diagnose.Explain(tree, doc); !d.Empty() {
		fmt.Printf("FAIL %s: %s\n", path, d.String())
		return false
	}
	if !ck.Check(doc) {
		fmt.Printf("FAIL %s: rejected by compiled checker\n", path)
		return false
	}
	fmt.Printf("PASS %s\n", path)
	return true
}

func main() {
	schemaFile := flag.String("schema", "", "JSON Schema file describing the expected shape")
	exampleFile := flag.String("example", "", "YAML/JSON example document to derive the shape from")
	strict := flag.Bool("strict", false, "check every container element instead of sampling")
	flag.Parse()

	if (*schemaFile == "") == (*exampleFile == "") || flag.NArg() == 0 {
		fmt.Println("Usage: typefence (-schema file | -example file) [-strict] document...")
		os.Exit(1)
	}

	raw, err := loadSpec(*schemaFile, *exampleFile)
	if err != nil {
		fmt.Printf("Error loading specification: %v\n", err)
		os.Exit(1)
	}
	tree, err := spec.Parse(raw, nil)
	if err != nil {
		fmt.Printf("Error parsing specification: %v\n", err)
		os.Exit(1)
	}

	mode := compile.ModeSample
	if *strict {
		mode = compile.ModeExhaustive
	}
	cache := compile.NewCache()
	ck, err := cache.GetOrCompile(tree, mode)
	if err != nil {
		fmt.Printf("Error compiling specification: %v\n", err)
		os.Exit(1)
	}

	ok := true
	for _, path := range flag.Args() {
		if !checkFile(ck, tree, path) {
			ok = false
		}
	}
	if !ok {
		os.Exit(1)
	}
}
