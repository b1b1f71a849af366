package backend

import (
	"fmt"
	"net/url"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	url       *url.URL
	awsConfig *aws.Config
	endpoint  string       // custom S3 endpoint; forces path-style addressing
	region    string       // S3 region, overrides the region= query parameter
	accessKey string       // static credentials, used with secretKey
	secretKey string       // static credentials, used with accessKey
	anonymous bool         // forces anonymous credentials
	tracer    trace.Tracer // optional OTel tracer; when set, AWS SDK middleware is injected
}

type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(url *url.URL, opts ...Opt) (*opt, error) {
	// Apply options
	o := opt{url: url}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	// Region from the URL when not set explicitly
	if o.region == "" && url != nil {
		o.region = url.Query().Get("region")
	}

	// Return success
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithEndpoint sets the S3 endpoint for S3-compatible services.
// Path-style addressing is always used for custom endpoints.
func WithEndpoint(endpoint string) Opt {
	return func(o *opt) error {
		if endpoint, err := url.Parse(endpoint); err != nil {
			return err
		} else if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
			return fmt.Errorf("endpoint must be http:// or https://, got %s://", endpoint.Scheme)
		} else {
			o.endpoint = endpoint.String()
			o.set("endpoint", endpoint.String())
		}
		return nil
	}
}

// WithRegion sets the S3 region
func WithRegion(region string) Opt {
	return func(o *opt) error {
		o.region = region
		o.set("region", region)
		return nil
	}
}

// WithCredentials sets static S3 credentials. Empty values are ignored
// so the default credential chain applies.
func WithCredentials(accessKey, secretKey string) Opt {
	return func(o *opt) error {
		if (accessKey == "") != (secretKey == "") {
			return fmt.Errorf("both access key and secret key are required")
		}
		o.accessKey = accessKey
		o.secretKey = secretKey
		return nil
	}
}

// WithAnonymous forces use of anonymous credentials.
// Use this for S3-compatible services that don't require authentication.
func WithAnonymous() Opt {
	return func(o *opt) error {
		o.anonymous = true
		o.set("anonymous", "true")
		return nil
	}
}

// WithCreateDir sets create_dir=true for file:// URLs to create the directory if it doesn't exist
func WithCreateDir() Opt {
	return func(o *opt) error {
		o.set("create_dir", "true")
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the backend.
// When set on an s3:// backend, AWS SDK middleware is injected so each S3 API
// call produces a child span.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opt) error {
		o.tracer = tracer
		return nil
	}
}

// WithAWSConfig provides an AWS SDK v2 Config directly, in place of the
// configuration derived from the URL and the other options.
func WithAWSConfig(cfg aws.Config) Opt {
	return func(o *opt) error {
		o.awsConfig = &cfg
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) set(key, value string) {
	if o.url == nil {
		return
	}
	q := o.url.Query()
	if value == "" {
		q.Del(key)
	} else {
		q.Set(key, value)
	}
	o.url.RawQuery = q.Encode()
}
