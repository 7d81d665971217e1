package client

import (
	"context"
	"net/http"
)

// Do runs req and decodes successful content into a T.
func Do[T any](ctx context.Context, c *Client, req *Request) (*TypedResponse[T], error) {
	var data T
	req.Result = &data
	resp, err := c.Request(ctx, req)
	out := &TypedResponse[T]{Response: resp}
	if resp.Entity != nil {
		out.Data = data
	}
	return out, err
}

// Get performs a GET and decodes the response into a T.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (*TypedResponse[T], error) {
	return Do[T](ctx, c, newRequest(http.MethodGet, path, nil, opts))
}

// Post performs a POST with entity and decodes the response into a T.
func Post[T any](ctx context.Context, c *Client, path string, entity any, opts ...RequestOption) (*TypedResponse[T], error) {
	return Do[T](ctx, c, newRequest(http.MethodPost, path, entity, opts))
}

// Put performs a PUT with entity and decodes the response into a T.
func Put[T any](ctx context.Context, c *Client, path string, entity any, opts ...RequestOption) (*TypedResponse[T], error) {
	return Do[T](ctx, c, newRequest(http.MethodPut, path, entity, opts))
}

// Delete performs a DELETE and decodes the response into a T.
func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (*TypedResponse[T], error) {
	return Do[T](ctx, c, newRequest(http.MethodDelete, path, nil, opts))
}

// Get performs a GET.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, newRequest(http.MethodGet, path, nil, opts))
}

// Post performs a POST with entity.
func (c *Client) Post(ctx context.Context, path string, entity any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, newRequest(http.MethodPost, path, entity, opts))
}

// Put performs a PUT with entity.
func (c *Client) Put(ctx context.Context, path string, entity any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, newRequest(http.MethodPut, path, entity, opts))
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, newRequest(http.MethodDelete, path, nil, opts))
}

// Head performs a HEAD.
func (c *Client) Head(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, newRequest(http.MethodHead, path, nil, opts))
}

// Options performs an OPTIONS request.
func (c *Client) Options(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, newRequest(http.MethodOptions, path, nil, opts))
}

func newRequest(method, path string, entity any, opts []RequestOption) *Request {
	req := &Request{Method: method, Path: path, Entity: entity}
	for _, opt := range opts {
		opt(req)
	}
	return req
}
