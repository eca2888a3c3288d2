package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
)

// S3PutObjectAPI is the subset of the S3 client used for exports.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// WriteCSV writes the dataset as fecha,temperatura,humedad rows with a
// header, using TimeLayout for timestamps.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnFecha, ColumnTemperatura, ColumnHumedad}); err != nil {
		return err
	}
	for _, r := range ds.records {
		if err := cw.Write([]string{
			r.Fecha.Format(TimeLayout),
			strconv.FormatFloat(r.Temperatura, 'f', -1, 64),
			strconv.FormatFloat(r.Humedad, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Exporter writes cleaned datasets to a local file or an s3://bucket/key
// destination. Destinations ending in .gz are gzip-compressed.
type Exporter struct {
	S3 S3PutObjectAPI
}

func (e *Exporter) Export(ctx context.Context, ds *Dataset, dest string) error {
	if dest == "" {
		return errors.New("destination is required")
	}

	var buf bytes.Buffer
	if err := encode(&buf, ds, strings.HasSuffix(dest, ".gz")); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}

	if strings.HasPrefix(dest, "s3://") {
		return e.putObject(ctx, dest, buf.Bytes())
	}
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func (e *Exporter) putObject(ctx context.Context, dest string, body []byte) error {
	if e.S3 == nil {
		return fmt.Errorf("s3 client is required for %s", dest)
	}
	bucket, key, err := parseS3URI(dest)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	}
	if strings.HasSuffix(key, ".gz") {
		input.ContentEncoding = aws.String("gzip")
	}
	if _, err := e.S3.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", dest, err)
	}
	return nil
}

func encode(w io.Writer, ds *Dataset, compress bool) error {
	if !compress {
		return WriteCSV(w, ds)
	}
	gz := gzip.NewWriter(w)
	if err := WriteCSV(gz, ds); err != nil {
		return err
	}
	return gz.Close()
}

func parseS3URI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 uri %q: %w", uri, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q: want s3://bucket/key", uri)
	}
	return u.Host, key, nil
}
