// reqgate is the compliance gate CLI.
//
// Usage:
//
//	reqgate ingest -r requirements.json
//	reqgate validate -r requirements.json
//	reqgate query -r requirements.json --subtype security
//	reqgate run -c reqgate.yaml -r requirements.json -f facts.json
//	reqgate run -c reqgate.yaml -r requirements.json -f facts/
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evidentops/reqgate/pkg/types"
)

var (
	version = "dev"
	debug   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reqgate",
		Short: "Evaluate requirements against collected facts",
		Long: `reqgate ingests normalized requirement records, evaluates them against a
facts document through an external policy engine, and emits a SARIF report
backed by an append-only evidence ledger.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadRequirements reads requirement records from a JSON array or a JSONL
// stream, one record per line.
func loadRequirements(path string) ([]types.Requirement, error) {
	// #nosec G304 -- path is an operator-provided input file.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []types.Requirement
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return records, nil
	}

	var records []types.Requirement
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec types.Requirement
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

func loadFacts(path string) (types.Facts, error) {
	// #nosec G304 -- path is an operator-provided input file.
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Facts{}, err
	}
	var facts types.Facts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return types.Facts{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return facts, nil
}

// loadFactsSet reads facts from a file or a directory. In a directory,
// default.json is the fallback document and every other *.json file supplies
// the facts for the subtype its basename names.
func loadFactsSet(path string) (types.Facts, map[string]types.Facts, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Facts{}, nil, err
	}
	if !info.IsDir() {
		facts, err := loadFacts(path)
		return facts, nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return types.Facts{}, nil, err
	}

	var def types.Facts
	haveDefault := false
	bySubtype := map[string]types.Facts{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		facts, err := loadFacts(filepath.Join(path, name))
		if err != nil {
			return types.Facts{}, nil, err
		}
		subtype := strings.TrimSuffix(name, ".json")
		if subtype == "default" {
			def = facts
			haveDefault = true
			continue
		}
		bySubtype[subtype] = facts
	}
	if !haveDefault {
		return types.Facts{}, nil, fmt.Errorf("facts directory %s has no default.json", path)
	}
	return def, bySubtype, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
