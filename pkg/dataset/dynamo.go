package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names of a stored reading.
const (
	AttributeID          = "id"
	AttributeTemperatura = "temperatura"
	AttributeHumedad     = "humedad"
)

type DynamoStoreConfig struct {
	Logger *slog.Logger
	Client dynamodb.ScanAPIClient
	Table  string
}

func (cfg *DynamoStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("dynamodb client is required")
	}
	if cfg.Table == "" {
		return errors.New("table is required")
	}
	return nil
}

// DynamoStore reads every reading from a DynamoDB table with a paginated
// full scan.
type DynamoStore struct {
	log *slog.Logger
	cfg *DynamoStoreConfig
}

func NewDynamoStore(cfg *DynamoStoreConfig) (*DynamoStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DynamoStore{log: cfg.Logger, cfg: cfg}, nil
}

func (s *DynamoStore) Scan(ctx context.Context) ([]Reading, error) {
	paginator := dynamodb.NewScanPaginator(s.cfg.Client, &dynamodb.ScanInput{
		TableName: aws.String(s.cfg.Table),
	})

	var readings []Reading
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table %s: %w", s.cfg.Table, err)
		}
		pages++
		for _, item := range page.Items {
			readings = append(readings, Reading{
				ID:          attributeText(item[AttributeID]),
				Temperatura: attributeText(item[AttributeTemperatura]),
				Humedad:     attributeText(item[AttributeHumedad]),
			})
		}
	}

	s.log.Debug("dataset: scanned table", "table", s.cfg.Table, "pages", pages, "items", len(readings))
	return readings, nil
}

// attributeText returns the textual form of a string or number attribute.
// Anything else, including a missing attribute, is empty and is rejected
// later as a missing value.
func attributeText(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}
