package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/wallet"
)

const redacted = "<redacted>"

// VerifyResult holds the outcome of replaying the found log.
type VerifyResult struct {
	Verified    []string          `json:"verified"`             // derivation matches the stored record
	Divergent   []DivergentRecord `json:"divergent"`            // stored field differs from the re-derived value
	Failed      []FailedRecord    `json:"failed"`               // phrase unusable
	Duplicates  []string          `json:"duplicates,omitempty"` // re-appended addresses (undelivered markers)
	StillFunded []string          `json:"still_funded,omitempty"`
	Drained     []string          `json:"drained,omitempty"`
	CheckErrors []FailedRecord    `json:"check_errors,omitempty"`
}

// DivergentRecord records a field-level mismatch between the stored record
// and the re-derived wallet. Key material values are never reproduced.
type DivergentRecord struct {
	Address string `json:"address"`
	Field   string `json:"field"`
	Stored  string `json:"stored"`
	Derived string `json:"derived"`
}

// FailedRecord pairs an address with the error that kept it from being
// verified or re-checked.
type FailedRecord struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// HasMismatch reports whether any record failed derivation replay. Drained
// wallets and re-check errors are informational: balances move, key
// material must not.
func (r *VerifyResult) HasMismatch() bool {
	return len(r.Divergent) > 0 || len(r.Failed) > 0
}

// verifyRecords replays the derivation for every unique address in the log
// and compares the derived address and private key against the stored ones.
func verifyRecords(records []model.WalletRecord, generator *wallet.Mnemonic) VerifyResult {
	var result VerifyResult

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.Address]; dup {
			result.Duplicates = append(result.Duplicates, rec.Address)
			continue
		}
		seen[rec.Address] = struct{}{}

		cand, err := generator.FromPhrase(strings.Join(rec.Phrase, " "))
		if err != nil {
			result.Failed = append(result.Failed, FailedRecord{Address: rec.Address, Error: err.Error()})
			continue
		}

		matches := true
		if cand.Address != rec.Address {
			matches = false
			result.Divergent = append(result.Divergent, DivergentRecord{
				Address: rec.Address,
				Field:   "address",
				Stored:  rec.Address,
				Derived: cand.Address,
			})
		}
		if cand.PrivateKey != rec.PrivateKey {
			matches = false
			// Never reproduce key material in a report.
			result.Divergent = append(result.Divergent, DivergentRecord{
				Address: rec.Address,
				Field:   "private_key",
				Stored:  redacted,
				Derived: redacted,
			})
		}
		if matches {
			result.Verified = append(result.Verified, rec.Address)
		}
	}

	sortResult(&result)
	return result
}

// sortResult orders every list for deterministic output.
func sortResult(r *VerifyResult) {
	sort.Strings(r.Verified)
	sort.Strings(r.Duplicates)
	sort.Strings(r.StillFunded)
	sort.Strings(r.Drained)
	sort.Slice(r.Divergent, func(i, j int) bool {
		if r.Divergent[i].Address == r.Divergent[j].Address {
			return r.Divergent[i].Field < r.Divergent[j].Field
		}
		return r.Divergent[i].Address < r.Divergent[j].Address
	})
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].Address < r.Failed[j].Address })
	sort.Slice(r.CheckErrors, func(i, j int) bool { return r.CheckErrors[i].Address < r.CheckErrors[j].Address })
}

// uniqueCount reports how many distinct addresses the replay touched.
func uniqueCount(result VerifyResult) int {
	distinct := make(map[string]struct{}, len(result.Divergent))
	for _, d := range result.Divergent {
		distinct[d.Address] = struct{}{}
	}
	return len(result.Verified) + len(result.Failed) + len(distinct)
}

// printTextReport writes a human-readable report to w.
func printTextReport(w io.Writer, foundLog string, records int, recheck bool, result VerifyResult) {
	fmt.Fprintln(w, "=== Found-Log Replay Report ===")
	fmt.Fprintf(w, "Found log: %s\n", foundLog)
	fmt.Fprintf(w, "Records: %d (%d unique, %d re-appended)\n", records, uniqueCount(result), len(result.Duplicates))
	fmt.Fprintf(w, "Verified: %d\n", len(result.Verified))
	fmt.Fprintf(w, "Divergent: %d\n", len(result.Divergent))
	fmt.Fprintf(w, "Failed: %d\n", len(result.Failed))
	if recheck {
		fmt.Fprintf(w, "Still funded: %d\n", len(result.StillFunded))
		fmt.Fprintf(w, "Drained: %d\n", len(result.Drained))
		fmt.Fprintf(w, "Check errors: %d\n", len(result.CheckErrors))
	}

	if len(result.Divergent) > 0 {
		fmt.Fprintln(w, "\n--- Divergent (stored vs re-derived) ---")
		for _, d := range result.Divergent {
			fmt.Fprintf(w, "  %s: %s stored=%q derived=%q\n", d.Address, d.Field, d.Stored, d.Derived)
		}
	}
	if len(result.Failed) > 0 {
		fmt.Fprintln(w, "\n--- Failed (phrase unusable) ---")
		for _, f := range result.Failed {
			fmt.Fprintf(w, "  %s: %s\n", f.Address, f.Error)
		}
	}
	if recheck && len(result.Drained) > 0 {
		fmt.Fprintln(w, "\n--- Drained (no value at re-check) ---")
		for _, addr := range result.Drained {
			fmt.Fprintf(w, "  %s\n", addr)
		}
	}
	if recheck && len(result.CheckErrors) > 0 {
		fmt.Fprintln(w, "\n--- Check errors ---")
		for _, f := range result.CheckErrors {
			fmt.Fprintf(w, "  %s: %s\n", f.Address, f.Error)
		}
	}

	fmt.Fprintln(w)
	if !result.HasMismatch() {
		fmt.Fprintln(w, "Result: MATCH")
	} else {
		fmt.Fprintln(w, "Result: MISMATCH")
	}
}

// printJSONReport writes a JSON report to w.
func printJSONReport(w io.Writer, foundLog string, records int, recheck bool, result VerifyResult) error {
	report := struct {
		FoundLog  string       `json:"found_log"`
		Records   int          `json:"records"`
		Unique    int          `json:"unique_addresses"`
		Rechecked bool         `json:"rechecked"`
		Result    string       `json:"result"`
		Verify    VerifyResult `json:"verify"`
	}{
		FoundLog:  foundLog,
		Records:   records,
		Unique:    uniqueCount(result),
		Rechecked: recheck,
		Verify:    result,
	}
	if result.HasMismatch() {
		report.Result = "MISMATCH"
	} else {
		report.Result = "MATCH"
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
