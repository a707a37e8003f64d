// Package s3 probes object-store locations declared under the "s3" kind.
package s3

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/adapters/probe"
)

func init() {
	probe.RegisterFile("s3", func(ctx context.Context, cfg probe.FileConfig) (probe.FileProber, error) {
		return NewProber(ctx, cfg)
	})
}

// API is the subset of the S3 client the prober uses.
type API interface {
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Prober verifies S3 URLs. Buckets may live in any region: the prober
// discovers each bucket's region first and rebinds to a region-specific
// client when it differs from the configured one, avoiding the
// cross-region-bucket failure mode.
type Prober struct {
	client     API
	region     string
	extensions []string
	newClient  func(region string) API
	logger     *zap.Logger
}

// NewProber builds a prober bound to the configured region. A failure
// here (typically the credential chain) is fatal for the verification
// call, not per-resource data.
func NewProber(ctx context.Context, cfg probe.FileConfig) (*Prober, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Prober{
		client:     s3.NewFromConfig(awsCfg),
		region:     cfg.Region,
		extensions: cfg.SupportedExtensions,
		newClient: func(region string) API {
			return s3.NewFromConfig(awsCfg, func(o *s3.Options) { o.Region = region })
		},
		logger: zap.L().Named("s3-probe"),
	}, nil
}

// ProbeObject verifies one S3 URL. Returns "" on success or a failure
// string identifying the resource.
func (p *Prober) ProbeObject(ctx context.Context, rawURL string) string {
	// Spaces are legal in object keys but not in URLs.
	encoded := strings.ReplaceAll(rawURL, " ", "%20")
	parsed, err := url.Parse(encoded)
	if err != nil {
		return fmt.Sprintf("Error: Failed to parse S3 URL '%s': %v", rawURL, err)
	}

	bucket := parsed.Host
	if bucket == "" {
		return fmt.Sprintf("Error: Failed to get bucket name from S3 URL '%s'", rawURL)
	}

	key, err := url.PathUnescape(strings.TrimPrefix(parsed.Path, "/"))
	if err != nil {
		return fmt.Sprintf("Error: Failed to decode object key in S3 URL '%s': %v", rawURL, err)
	}

	// Reachability check doubles as region discovery.
	loc, err := p.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: &bucket})
	if err != nil {
		return fmt.Sprintf("Error: Failed to connect to S3 bucket '%s' in URL '%s': %v", bucket, rawURL, err)
	}

	client := p.client
	if region := bucketRegion(string(loc.LocationConstraint)); region != p.region {
		client = p.newClient(region)
	}

	if strings.Contains(key, "*") {
		return p.probeWildcard(ctx, client, rawURL, bucket, key)
	}
	return p.probeObject(ctx, client, rawURL, bucket, key)
}

// GetBucketLocation returns an empty constraint for us-east-1.
func bucketRegion(constraint string) string {
	if constraint == "" {
		return "us-east-1"
	}
	return constraint
}

// probeWildcard validates a '<prefix>*<.ext>' key: the prefix must hold
// at least one object and a literal extension must be in the allow-list.
// Objects matched by the wildcard are deliberately not enumerated.
func (p *Prober) probeWildcard(ctx context.Context, client API, rawURL, bucket, key string) string {
	prefix, extension, _ := strings.Cut(key, "*")
	extension = strings.TrimPrefix(extension, ".")

	if prefix != "" {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: &bucket,
			Prefix: &prefix,
		})
		if err != nil {
			return fmt.Sprintf("Error: Failed to list objects in bucket '%s': %v", bucket, err)
		}
		if len(out.Contents) == 0 {
			return fmt.Sprintf("Error: Path '%s' does not exist in bucket '%s'", prefix, bucket)
		}
	}

	if extension != "" && !slices.Contains(p.extensions, extension) {
		return fmt.Sprintf("Error: Unsupported file extension(s) found in URL '%s': .%s", rawURL, extension)
	}
	return ""
}

func (p *Prober) probeObject(ctx context.Context, client API, rawURL, bucket, key string) string {
	if dot := strings.LastIndex(key, "."); dot >= 0 && dot < len(key)-1 {
		extension := key[dot+1:]
		if !slices.Contains(p.extensions, extension) {
			return fmt.Sprintf("Error: Unsupported file extension(s) found in URL '%s': .%s", rawURL, extension)
		}
	}

	if _, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key}); err != nil {
		return fmt.Sprintf("Error: Failed to access '%s' in bucket '%s' in URL '%s': %v", key, bucket, rawURL, err)
	}

	p.logger.Debug("object reachable",
		zap.String("bucket", bucket),
		zap.String("key", key))
	return ""
}
