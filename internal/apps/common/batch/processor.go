// Package batch runs one command over a file of transaction ids.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"payagent/internal/errors"
	"payagent/internal/txn/domain"
)

// Result is the outcome of one id
type Result struct {
	ID      domain.ID
	Outcome string
	Err     error
}

// ReadIDsFromFile reads transaction ids, one per line. Blank lines and lines
// starting with # are ignored.
func ReadIDsFromFile(filePath string) ([]domain.ID, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "cannot read id file").
			WithContext("path", filePath)
	}
	defer file.Close() // nolint:errcheck // read only

	var ids []domain.ID
	seen := make(map[domain.ID]bool)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id := domain.ID(line)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "cannot read id file").
			WithContext("path", filePath)
	}
	return ids, nil
}

// Process runs fn for each id in order. An unauthorized error or a cancelled
// ctx stops the run and the remaining ids are reported as skipped.
func Process(ctx context.Context, ids []domain.ID, fn func(ctx context.Context, id domain.ID) (string, error)) []Result {
	results := make([]Result, 0, len(ids))
	stopped := false
	for _, id := range ids {
		if stopped || ctx.Err() != nil {
			results = append(results, Result{ID: id, Outcome: "skipped"})
			continue
		}
		outcome, err := fn(ctx, id)
		if err != nil {
			outcome = "failed"
			stopped = errors.IsUnauthorized(err)
		}
		results = append(results, Result{ID: id, Outcome: outcome, Err: err})
	}
	return results
}

// Failed counts the results with an error
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// WriteResults writes one section per result to outputPath
func WriteResults(results []Result, outputPath string) error {
	var buffer bytes.Buffer
	for idx, result := range results {
		fmt.Fprintf(&buffer, "### [%d] transaction_id: %s\n", idx+1, result.ID)
		fmt.Fprintln(&buffer, result.Outcome)
		if result.Err != nil {
			fmt.Fprintf(&buffer, "Error: %v\n", result.Err)
		}
		fmt.Fprintln(&buffer)
	}

	if err := os.WriteFile(outputPath, buffer.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write results").
			WithContext("path", outputPath)
	}
	return nil
}
