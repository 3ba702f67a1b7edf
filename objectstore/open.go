package objectstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/filesystemsink/awsclient"
)

// Options carries the knobs Open needs beyond what's encoded in the URL
// itself. Region and Endpoint, if set, take precedence over whatever
// ParseURL recovered from the URL or environment.
type Options struct {
	Region   string
	Endpoint string
}

// Open parses rawURL and constructs the Port backend it names, loading
// default AWS credentials for an s3:// destination or a default GCS client
// for a gs:// destination. It's the single entry point command-line
// binaries use to turn a configured write_target into a live store.
func Open(ctx context.Context, rawURL string, opts Options) (Port, error) {
	parsed, err := ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("objectstore: open %q: %w", rawURL, err)
	}

	region := parsed.Region
	if opts.Region != "" {
		region = opts.Region
	}
	endpoint := parsed.Endpoint
	if opts.Endpoint != "" {
		endpoint = opts.Endpoint
	}

	switch parsed.Backend {
	case BackendS3:
		awsOpts := []func(*awsconfig.LoadOptions) error{}
		if region != "" {
			awsOpts = append(awsOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, fmt.Errorf("objectstore: load AWS config for %q: %w", rawURL, err)
		}
		rawClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = &endpoint
			}
		})
		return NewS3Store(awsclient.NewS3Client(rawClient), parsed.Bucket, parsed.Key, region, endpoint), nil

	case BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("objectstore: create GCS client for %q: %w", rawURL, err)
		}
		return NewGCSStore(client, parsed.Bucket, parsed.Key), nil

	case BackendLocal:
		store, err := NewLocalStore(parsed.Path)
		if err != nil {
			return nil, fmt.Errorf("objectstore: open local store for %q: %w", rawURL, err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("objectstore: open %q: unrecognized backend", rawURL)
	}
}
