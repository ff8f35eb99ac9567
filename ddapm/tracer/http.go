// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HTTPClient submits requests to the agent without blocking the caller on
// the network. Exactly one of onResponse or onError is invoked for every
// accepted request, asynchronously, on a goroutine owned by the client.
type HTTPClient interface {
	// Post submits a POST request. setHeaders is called synchronously with
	// a header writer before the request is dispatched. Post returns an
	// error only when the request cannot be accepted at all.
	Post(endpoint string, setHeaders func(TextMapWriter), body []byte,
		onResponse func(status int, headers TextMapReader, body []byte),
		onError func(err error)) error

	// Stop waits for in-flight requests to complete, up to the deadline.
	// Requests still pending afterwards are abandoned.
	Stop(deadline time.Time)
}

// responseBodyLimit bounds how much of an agent response is read.
const responseBodyLimit = 1 << 20 // 1MB

// httpClient is the default HTTPClient. It rides on net/http's connection
// pooling for request multiplexing and supports unix domain socket agent
// URLs.
type httpClient struct {
	client *http.Client

	mu      sync.Mutex // guards stopped
	stopped bool
	wg      sync.WaitGroup // counts in-flight requests
}

// defaultHTTPTimeout specifies the timeout for each individual request to
// the agent; on expiry the error handler fires.
const defaultHTTPTimeout = 10 * time.Second

func newHTTPClient(socketPath string, timeout time.Duration) *httpClient {
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if socketPath != "" {
		// The endpoint URL the request layer sees points at localhost; the
		// connection actually goes to the unix domain socket.
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		}
	}
	return &httpClient{
		client: &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Post implements HTTPClient.
func (c *httpClient) Post(endpoint string, setHeaders func(TextMapWriter), body []byte,
	onResponse func(status int, headers TextMapReader, body []byte),
	onError func(err error)) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return newError(ErrCodeHTTPClientSetupFailed, "HTTP client is stopped")
	}
	c.wg.Add(1)
	c.mu.Unlock()

	req, err := http.NewRequest("POST", endpoint, bytes.NewReader(body))
	if err != nil {
		c.wg.Done()
		return newError(ErrCodeHTTPClientSetupFailed, "cannot create request for %s: %v", endpoint, err)
	}
	setHeaders(HTTPHeadersCarrier(req.Header))

	go func() {
		defer c.wg.Done()
		resp, err := c.client.Do(req)
		if err != nil {
			onError(newError(ErrCodeRequestFailure, "error sending request to %s: %v", endpoint, err))
			return
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
		if err != nil {
			onError(newError(ErrCodeRequestFailure, "error reading response from %s: %v", endpoint, err))
			return
		}
		onResponse(resp.StatusCode, HTTPHeadersCarrier(resp.Header), respBody)
	}()
	return nil
}

// Stop implements HTTPClient.
func (c *httpClient) Stop(deadline time.Time) {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
	}
	c.client.CloseIdleConnections()
}

// resolveAgentEndpoint interprets the configured agent URL and returns the
// base URL to direct requests to, along with the unix domain socket path
// when one of the unix schemes is used. For unix URLs the socket path is
// taken from the URL authority (or its path, in the common unix:///path
// form) and the visible URL is rewritten to http://localhost.
func resolveAgentEndpoint(agentURL string) (base string, socketPath string, err error) {
	u, err := url.Parse(agentURL)
	if err != nil {
		return "", "", err
	}
	switch u.Scheme {
	case "unix", "http+unix", "https+unix":
		socketPath = u.Host
		if socketPath == "" {
			socketPath = u.Path
		} else if u.Path != "" {
			socketPath += u.Path
		}
		return "http://localhost", socketPath, nil
	case "http", "https":
		return strings.TrimSuffix(u.String(), "/"), "", nil
	default:
		return "", "", newError(ErrCodeHTTPClientSetupFailed, "unsupported agent URL scheme %q", u.Scheme)
	}
}
