package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type skipAuthKey struct{}

// SkipAuth marks ctx so the interceptor chain neither attaches a bearer
// token nor treats a 401 as token expiry. The login, refresh and logout
// calls use it; a 401 from those endpoints means bad credentials.
func SkipAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthKey{}, true)
}

func skipAuth(ctx context.Context) bool {
	v, _ := ctx.Value(skipAuthKey{}).(bool)
	return v
}

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// withTimeout bounds a single orchestrator call.
func (c *SDKClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.requestTimeout)
}

// doJSON sends a request with an optional JSON body. Unless authed is set the
// request bypasses the interceptor's token handling. Transport failures come
// back as *NetworkError.
func (c *SDKClient) doJSON(
	ctx context.Context,
	op, method, path string,
	body any,
	authed bool,
	headers map[string]string,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	if !authed {
		ctx = SkipAuth(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, asNetworkError(op, err)
	}
	return resp, nil
}

// readBody reads and closes the response body.
func readBody(op string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, asNetworkError(op, fmt.Errorf("failed to read response body: %w", err))
	}
	return body, nil
}

// decodeJSON decodes a 2xx response into target. Any other status becomes an
// *APIError.
func decodeJSON(op string, resp *http.Response, target any) error {
	body, err := readBody(op, resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, body)
	}

	if target == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// checkStatus accepts any 2xx and discards the body.
func checkStatus(op string, resp *http.Response) error {
	return decodeJSON(op, resp, nil)
}
