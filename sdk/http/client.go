// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

var (
	ErrInvalidCertificatePem = errors.New("invalid certificate PEM")
)

// RoundTripperFunc is an optional hook that wraps the transport used for
// outbound requests to an identity provider, allowing a host application to
// mutate requests before they are sent.
type RoundTripperFunc func(next http.RoundTripper) http.RoundTripper

// Options configure the client returned by NewClient.
type Options struct {
	// CAPem is an optional CA certificate PEM to trust instead of the
	// installed system CA chain.
	CAPem string

	// SkipTLSVerify disables TLS certificate verification.
	SkipTLSVerify bool

	// Timeout bounds each outbound request. Zero means no timeout.
	Timeout time.Duration

	// RoundTripper optionally wraps the transport.
	RoundTripper RoundTripperFunc
}

// NewClient creates a new http client for requests to an identity provider.
// It uses a pooled cleanhttp transport with the optional CA certificate PEM
// if provided, otherwise the installed system CA chain. The RoundTripper
// hook is applied last, so the host sees requests exactly as they will be
// sent.
func NewClient(opts Options) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	if opts.CAPem != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(opts.CAPem)); !ok {
			return nil, ErrInvalidCertificatePem
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	if opts.SkipTLSVerify {
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = &tls.Config{}
		}
		tr.TLSClientConfig.InsecureSkipVerify = true
	}

	var rt http.RoundTripper = tr
	if opts.RoundTripper != nil {
		rt = opts.RoundTripper(tr)
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
	}, nil
}

// OidcClientContext returns a new Context that carries the provided HTTP
// client. This sets the same context key used by the coreos/go-oidc and
// golang.org/x/oauth2 packages, so the returned context works for both.
func OidcClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}
