package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Backend identifies which object-store family a parsed URL resolves to.
type Backend int

const (
	BackendS3 Backend = iota
	BackendGCS
	BackendLocal
)

// S3RegionEnv and S3EndpointEnv name the job-level environment variables
// that take precedence over a URL-embedded region/endpoint but are
// themselves overridden by AWS_DEFAULT_REGION/AWS_ENDPOINT.
const (
	S3RegionEnv   = "S3_REGION_ENV"
	S3EndpointEnv = "S3_ENDPOINT_ENV"
)

// ParsedURL is the normalized result of recognizing one of the supported
// storage URL families.
type ParsedURL struct {
	Backend  Backend
	Bucket   string // empty for BackendLocal
	Key      string // object key; empty for BackendLocal
	Region   string // BackendS3 only
	Endpoint string // BackendS3 only, custom endpoint form
	Path     string // BackendLocal only, directory portion
}

var (
	s3Path        = regexp.MustCompile(`^https://s3\.(?P<region>[\w\-]+)\.amazonaws\.com/(?P<bucket>[a-z0-9\-.]+)(/(?P<key>.+))?$`)
	s3Virtual     = regexp.MustCompile(`^https://(?P<bucket>[a-z0-9\-.]+)\.s3\.(?P<region>[\w\-]+)\.amazonaws\.com(/(?P<key>.+))?$`)
	s3EndpointURL = regexp.MustCompile(`^[sS]3[aA]?::(?P<protocol>https?)://(?P<endpoint>[^:/]+):(?P<port>\d+)/(?P<bucket>[a-z0-9\-.]+)(/(?P<key>.+))?$`)
	s3URL         = regexp.MustCompile(`^[sS]3[aA]?://(?P<bucket>[a-z0-9\-.]+)(/(?P<key>.+))?$`)

	gcsPath    = regexp.MustCompile(`^https://storage\.googleapis\.com/(?P<bucket>[a-z0-9\-_.]+)(/(?P<key>.+))?$`)
	gcsVirtual = regexp.MustCompile(`^https://(?P<bucket>[a-z0-9\-_.]+)\.storage\.googleapis\.com(/(?P<key>.+))?$`)
	gcsURL     = regexp.MustCompile(`^[gG][sS]://(?P<bucket>[a-z0-9\-.]+)(/(?P<key>.+))?$`)

	fileURI  = regexp.MustCompile(`^file://(?P<path>.*)$`)
	fileURL  = regexp.MustCompile(`^file:(?P<path>.*)$`)
	filePath = regexp.MustCompile(`^/(?P<path>.*)$`)

	s3Matchers    = []*regexp.Regexp{s3Path, s3Virtual, s3EndpointURL, s3URL}
	gcsMatchers   = []*regexp.Regexp{gcsPath, gcsVirtual, gcsURL}
	localMatchers = []*regexp.Regexp{fileURI, fileURL, filePath}
)

func namedGroup(re *regexp.Regexp, match []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(match) {
			return match[i]
		}
	}
	return ""
}

// ParseURL recognizes one of the supported S3, GCS, or local-filesystem URL
// families, in the order they're declared in spec.md §6.1, and resolves
// environment-variable overrides for the S3 region and endpoint.
func ParseURL(url string) (ParsedURL, error) {
	for _, re := range s3Matchers {
		if m := re.FindStringSubmatch(url); m != nil {
			return parseS3(re, m)
		}
	}
	for _, re := range gcsMatchers {
		if m := re.FindStringSubmatch(url); m != nil {
			return parseGCS(re, m), nil
		}
	}
	for _, re := range localMatchers {
		if m := re.FindStringSubmatch(url); m != nil {
			return parseLocal(re, m), nil
		}
	}
	return ParsedURL{}, fmt.Errorf("objectstore: %q does not match any known storage URL form", url)
}

// lastNonEmpty returns the last non-empty string in candidates, matching the
// original Rust implementation's last(Option<T>...) precedence helper: each
// subsequent candidate, if present, overrides the ones before it.
func lastNonEmpty(candidates ...string) string {
	out := ""
	for _, c := range candidates {
		if c != "" {
			out = c
		}
	}
	return out
}

func parseS3(re *regexp.Regexp, m []string) (ParsedURL, error) {
	bucket := namedGroup(re, m, "bucket")
	key := namedGroup(re, m, "key")

	urlRegion := namedGroup(re, m, "region")
	region := lastNonEmpty(urlRegion, os.Getenv(S3RegionEnv), os.Getenv("AWS_DEFAULT_REGION"))

	var urlEndpoint string
	if endpoint := namedGroup(re, m, "endpoint"); endpoint != "" {
		protocol := namedGroup(re, m, "protocol")
		if protocol == "" {
			protocol = "https"
		}
		portStr := namedGroup(re, m, "port")
		port := 443
		if portStr != "" {
			p, err := strconv.Atoi(portStr)
			if err != nil {
				return ParsedURL{}, fmt.Errorf("objectstore: invalid port %q: %w", portStr, err)
			}
			port = p
		}
		urlEndpoint = fmt.Sprintf("%s://%s:%d", protocol, endpoint, port)
	}
	endpoint := lastNonEmpty(urlEndpoint, os.Getenv(S3EndpointEnv), os.Getenv("AWS_ENDPOINT"))

	return ParsedURL{
		Backend:  BackendS3,
		Bucket:   bucket,
		Key:      key,
		Region:   region,
		Endpoint: endpoint,
	}, nil
}

func parseGCS(re *regexp.Regexp, m []string) ParsedURL {
	return ParsedURL{
		Backend: BackendGCS,
		Bucket:  namedGroup(re, m, "bucket"),
		Key:     namedGroup(re, m, "key"),
	}
}

func parseLocal(re *regexp.Regexp, m []string) ParsedURL {
	path := namedGroup(re, m, "path")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return ParsedURL{
		Backend: BackendLocal,
		Path:    filepath.Clean(path),
	}
}
