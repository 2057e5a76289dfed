package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// RegistryError is a non-2xx schema registry reply.
type RegistryError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

func isSubjectMissing(err error) bool {
	var re *RegistryError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// SchemaRegistryClient resolves the JSON schema id framed into each change
// event, registering the schema on first use.
type SchemaRegistryClient struct {
	base   string
	client *http.Client
}

// NewSchemaRegistryClient returns a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type schemaID struct {
	ID int `json:"id"`
}

// EnsureSchema returns the latest schema id of subject. A missing subject
// is registered with schema.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	path := "/subjects/" + url.PathEscape(subject) + "/versions"

	var got schemaID
	err := c.call(ctx, http.MethodGet, path+"/latest", nil, &got)
	if err == nil {
		return got.ID, nil
	}
	if !isSubjectMissing(err) {
		return 0, err
	}
	body := map[string]string{"schemaType": "JSON", "schema": schema}
	if err := c.call(ctx, http.MethodPost, path, body, &got); err != nil {
		return 0, err
	}
	return got.ID, nil
}

func (c *SchemaRegistryClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", registryContentType)
	if in != nil {
		req.Header.Set("Content-Type", registryContentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RegistryError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
