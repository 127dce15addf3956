package auditexport

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/paygrid/disburse/config"
)

// ExportAuditLogs snapshots the audit ledger for one day into a gzipped
// JSONL file under the configured export directory. The ledger is append
// only, so a day that has passed never changes and the snapshot is stable.
func ExportAuditLogs(day time.Time) (string, error) {
	conf, err := config.Fetch()
	if err != nil {
		return "", err
	}

	db, err := sql.Open("postgres", conf.DataSource.Dns)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return "", err
	}

	dayStr := day.Format("2006-01-02")
	exportDir := fmt.Sprintf("./%s/%s", conf.ExportDir, dayStr)
	if _, err := os.Stat(exportDir); os.IsNotExist(err) {
		if err := os.MkdirAll(exportDir, os.ModePerm); err != nil {
			return "", err
		}
	}

	rows, err := db.Query(`
		SELECT audit_log_id, actor, action, COALESCE(transaction_id, ''), COALESCE(batch_id, ''), COALESCE(before_state, ''), COALESCE(after_state, ''), COALESCE(details, '{}'), created_at
		FROM disburse.audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, day.Truncate(24*time.Hour), day.Truncate(24*time.Hour).Add(24*time.Hour))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	exportPath := fmt.Sprintf("%s/audit-%s.jsonl.gz", exportDir, dayStr)
	file, err := os.Create(exportPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	enc := json.NewEncoder(gz)

	count := 0
	for rows.Next() {
		var record struct {
			AuditLogID    string          `json:"audit_log_id"`
			Actor         string          `json:"actor"`
			Action        string          `json:"action"`
			TransactionID string          `json:"transaction_id,omitempty"`
			BatchID       string          `json:"batch_id,omitempty"`
			BeforeState   string          `json:"before_state,omitempty"`
			AfterState    string          `json:"after_state,omitempty"`
			Details       json.RawMessage `json:"details,omitempty"`
			CreatedAt     time.Time       `json:"created_at"`
		}
		var details []byte
		if err := rows.Scan(&record.AuditLogID, &record.Actor, &record.Action, &record.TransactionID, &record.BatchID, &record.BeforeState, &record.AfterState, &details, &record.CreatedAt); err != nil {
			return "", err
		}
		record.Details = details
		if err := enc.Encode(record); err != nil {
			return "", err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	fmt.Printf("Exported %d audit entries to %s\n", count, exportPath)
	return exportPath, nil
}

// UploadToS3 ships a finished export to the configured bucket. The object
// key keeps the date partitioning so downstream queries can prune by day.
func UploadToS3(exportPath string, day time.Time) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(conf.S3Region),
		Credentials: credentials.NewStaticCredentials(conf.AwsAccessKeyId, conf.AwsSecretAccessKey, ""),
	})
	if err != nil {
		return err
	}

	file, err := os.Open(exportPath)
	if err != nil {
		return err
	}
	defer file.Close()

	key := fmt.Sprintf("audit/%s/audit-%s.jsonl.gz", day.Format("2006-01-02"), day.Format("2006-01-02"))
	_, err = s3.New(sess).PutObject(&s3.PutObjectInput{
		Bucket: aws.String(conf.S3BucketName),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return err
	}

	if err := os.Remove(exportPath); err != nil {
		return err
	}

	fmt.Println("Audit export for", day.Format("2006-01-02"), "uploaded to S3.")
	return nil
}
