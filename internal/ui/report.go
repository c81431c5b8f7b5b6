package ui

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"payagent/internal/errors"
	"payagent/internal/txn/domain"
)

// WriteQueueReport writes the queue snapshot to outputPath, one section per
// transaction. Status colors are left out so the file stays plain text.
func WriteQueueReport(rows []QueueRow, anomalies []domain.Anomaly, fetchedAt time.Time, outputPath string) error {
	var buffer bytes.Buffer
	writeReportHeader(&buffer, len(rows), fetchedAt)
	for idx, row := range rows {
		writeReportRow(&buffer, row, anomalyOf(anomalies, row.Transaction.ID), idx+1)
	}

	if err := os.WriteFile(outputPath, buffer.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write report").
			WithContext("path", outputPath)
	}
	return nil
}

func writeReportHeader(w io.Writer, count int, fetchedAt time.Time) {
	when := "never"
	if !fetchedAt.IsZero() {
		when = fetchedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "# pending transactions: %d (as of %s)\n\n", count, when)
}

func writeReportRow(w io.Writer, row QueueRow, anomaly *domain.Anomaly, index int) {
	tx := row.Transaction
	fmt.Fprintf(w, "### [%d] transaction_id: %s\n", index, tx.ID)

	fmt.Fprintln(w, "[details]")
	fmt.Fprintf(w, "batch_id: %s\n", tx.BatchID)
	fmt.Fprintf(w, "vendor: %s\n", tx.Vendor)
	fmt.Fprintf(w, "amount: %s\n", FormatAmount(tx.Amount))
	fmt.Fprintf(w, "account_number: %s\n", MaskAccount(tx.AccountNumber))
	if tx.IFSCCode != nil {
		fmt.Fprintf(w, "ifsc_code: %s\n", *tx.IFSCCode)
	}
	if tx.Remarks != nil {
		fmt.Fprintf(w, "remarks: %s\n", MaskSensitive(*tx.Remarks))
	}
	status := string(tx.Status)
	if tx.Optimistic {
		status += " (unconfirmed)"
	}
	fmt.Fprintf(w, "status: %s\n", status)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[next]")
	next := row.Action
	if next == "" {
		next = "none"
	}
	if row.Note != "" {
		next += ": " + row.Note
	}
	fmt.Fprintln(w, next)

	if anomaly != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "[anomaly]")
		fmt.Fprintf(w, "%s -> %s at %s\n", anomaly.From, anomaly.To, anomaly.ObservedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)
}

func anomalyOf(anomalies []domain.Anomaly, id domain.ID) *domain.Anomaly {
	for i := range anomalies {
		if anomalies[i].TransactionID == id {
			return &anomalies[i]
		}
	}
	return nil
}
