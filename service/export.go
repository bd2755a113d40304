package service

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/storage"
	"github.com/vocdoni/ticketvote/types"
)

// S3Config holds the configuration of the tally export.
type S3Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	Region     string `mapstructure:"region"`
	AccessKey  string `mapstructure:"accessKey"`
	SecretKey  string `mapstructure:"secretKey"`
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	PublicRead bool   `mapstructure:"publicRead"`
}

// TallyExport is the document uploaded when an epoch closes. It holds
// everything the tally authority needs to decrypt the results.
type TallyExport struct {
	EventID       uuid.UUID        `json:"eventId"`
	Options       int              `json:"options"`
	Weight        uint64           `json:"weight"`
	Ballots       uint64           `json:"ballots"`
	EncryptionKey types.HexBytes   `json:"encryptionKey"`
	Tallies       []types.HexBytes `json:"tallies"`
	ClosedAt      time.Time        `json:"closedAt"`
}

// S3Exporter uploads closed epoch tallies to an S3 compatible storage.
type S3Exporter struct {
	client *s3.Client
	config *S3Config
}

// NewS3Exporter creates an S3Exporter with static credentials.
func NewS3Exporter(ctx context.Context, cfg *S3Config) (*S3Exporter, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("s3 export not enabled")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		// required by the SDK, ignored by most S3 compatible services
		region = "us-east-1"
	}
	sdkConfig, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &S3Exporter{client: client, config: cfg}, nil
}

// ObjectKey returns the key the tallies of eventID are uploaded to.
func (e *S3Exporter) ObjectKey(eventID uuid.UUID) string {
	return path.Join(e.config.Prefix, eventID.String(), "tally.json")
}

// Export uploads the final tallies of epoch. It has the signature of a
// ballotbox.CloseHook.
func (e *S3Exporter) Export(ctx context.Context, epoch *types.Epoch, tallies [][]byte) error {
	doc := &TallyExport{
		EventID:       epoch.EventID,
		Options:       epoch.Options,
		Weight:        epoch.VoteWeight(),
		Ballots:       epoch.Ballots,
		EncryptionKey: epoch.EncryptionKey,
		ClosedAt:      epoch.ClosedAt,
	}
	for _, t := range tallies {
		doc.Tallies = append(doc.Tallies, t)
	}
	data, err := storage.EncodeArtifact(doc, storage.ArtifactEncodingJSON)
	if err != nil {
		return fmt.Errorf("encode tally export: %w", err)
	}
	key := e.ObjectKey(epoch.EventID)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(e.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if e.config.PublicRead {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}
	log.Infow("uploading tally export", "bucket", e.config.Bucket, "key", key, "bytes", len(data))
	if _, err := e.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
