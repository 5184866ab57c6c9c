package httpproxy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	v4signer "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/oauth2/google"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// ApplyBackendAuth authenticates req for the chosen backend per the
// configured BackendAuthKind. AWS signing is applied last in the pipeline
// (AWS is applied late, after all body mutations,
// because it signs the final body") — callers must invoke this only after
// request transformation and filters have finished mutating req.
func ApplyBackendAuth(ctx context.Context, req *http.Request, p *store.Policy, region string) error {
	if p == nil {
		return nil
	}
	switch p.BackendAuthKind {
	case store.BackendAuthPassthrough, "":
		return nil
	case store.BackendAuthKey:
		req.Header.Set("Authorization", "Bearer "+p.BackendAuthKey)
		return nil
	case store.BackendAuthGCP:
		return applyGCPAuth(ctx, req)
	case store.BackendAuthAWS:
		return applyAWSSigV4(ctx, req, region)
	default:
		return fmt.Errorf("httpproxy: unknown backend auth kind %q", p.BackendAuthKind)
	}
}

func applyGCPAuth(ctx context.Context, req *http.Request) error {
	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return fmt.Errorf("httpproxy: resolve GCP ADC: %w", err)
	}
	token, err := creds.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("httpproxy: fetch GCP ADC token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return nil
}

func applyAWSSigV4(ctx context.Context, req *http.Request, region string) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return fmt.Errorf("httpproxy: load AWS config: %w", err)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("httpproxy: retrieve AWS credentials: %w", err)
	}

	var bodyHash string
	if req.Body != nil {
		buf, err := io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("httpproxy: read body for sigv4: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(buf))
		sum := sha256.Sum256(buf)
		bodyHash = hex.EncodeToString(sum[:])
	} else {
		sum := sha256.Sum256(nil)
		bodyHash = hex.EncodeToString(sum[:])
	}

	signer := v4signer.NewSigner()
	return signer.SignHTTP(ctx, awssdk.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, req, bodyHash, "bedrock", region, time.Now())
}

