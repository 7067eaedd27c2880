// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"net/http"
	"net/url"
)

// Option configures a single HTTP request.
type Option func(*Options)

// Options are the extra headers and query parameters sent with HTTP
// transport requests.
type Options struct {
	headers     http.Header
	queryParams url.Values
}

// NewOptions applies ops to an empty Options.
func NewOptions(ops []Option) *Options {
	o := &Options{
		headers:     http.Header{},
		queryParams: url.Values{},
	}
	for _, op := range ops {
		op(o)
	}
	return o
}

// Headers returns the configured headers.
func (o *Options) Headers() http.Header { return o.headers }

// QueryParams returns the configured query parameters.
func (o *Options) QueryParams() url.Values { return o.queryParams }

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(o *Options) {
		o.headers.Set(key, value)
	}
}

// WithQueryParam adds a query parameter to every request.
func WithQueryParam(key, value string) Option {
	return func(o *Options) {
		o.queryParams.Add(key, value)
	}
}
