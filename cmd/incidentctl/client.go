package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

type apiClient struct {
	r *resty.Client
}

func newClient() *apiClient {
	return &apiClient{r: resty.New().
		SetBaseURL(apiFlag).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")}
}

// call sends body as JSON (or raw bytes) and returns the response body.
// Any status >= 400 is an error carrying the server message.
func (c *apiClient) call(method, path string, body any) ([]byte, error) {
	req := c.r.R()
	switch b := body.(type) {
	case nil:
	case []byte:
		req.SetHeader("Content-Type", "application/octet-stream").SetBody(b)
	default:
		req.SetHeader("Content-Type", "application/json").SetBody(b)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), bytes.TrimSpace(resp.Body()))
	}
	return resp.Body(), nil
}

// printJSON writes data indented, or a short status line when there is no body.
func printJSON(out io.Writer, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		_, err := fmt.Fprintln(out, "ok")
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = out.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func run(out io.Writer, method, path string, body any) error {
	data, err := newClient().call(method, path, body)
	if err != nil {
		return err
	}
	return printJSON(out, data)
}

