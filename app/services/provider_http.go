package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

// utf8BOM is prepended by some storefront endpoints
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// providerResponse is a fully read HTTP response
type providerResponse struct {
	Status int
	Body   []byte
}

func (r *providerResponse) ok() bool {
	return r.Status >= 200 && r.Status < 300
}

// do executes req and reads the whole body. Network and read failures become TransportError.
func do(client *http.Client, provider Provider, op string, req *http.Request) (*providerResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Provider: provider, Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	return &providerResponse{Status: resp.StatusCode, Body: bytes.TrimPrefix(body, utf8BOM)}, nil
}

// decodeJSON unmarshals a 2xx body, turning parse failures into MalformedResponseError
func decodeJSON(provider Provider, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedResponseError{Provider: provider, RawBody: body, Err: err}
	}
	return nil
}

func remoteError(provider Provider, resp *providerResponse) error {
	if resp.Status == http.StatusUnauthorized {
		return &AuthError{Provider: provider, Status: resp.Status, Reason: truncate(string(resp.Body), maxErrorBody)}
	}
	return &RemoteError{Provider: provider, Status: resp.Status, Body: truncate(string(resp.Body), maxErrorBody)}
}

// formField is one multipart field; repeated names are allowed
type formField struct {
	Name  string
	Value string
}

func multipartBody(fields []formField) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// withAuthRetry runs call with the cached token and, on AuthError, forces one refresh and runs it once more
func withAuthRetry(ctx context.Context, tokens TokenCache, provider Provider, call func(token string) error) error {
	token, err := tokens.GetToken(ctx, provider, false)
	if err != nil {
		return err
	}
	err = call(token)
	if !IsAuthError(err) {
		return err
	}
	token, err = tokens.GetToken(ctx, provider, true)
	if err != nil {
		return err
	}
	return call(token)
}

// FlexString accepts both JSON strings and numbers
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

// Int64 parses the value as a base 10 integer
func (s FlexString) Int64() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
}
