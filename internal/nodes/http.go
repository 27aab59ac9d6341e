package nodes

import (
	"context"
	"net/url"
	"strings"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

// httpHandler calls a remote endpoint. The status and body are always
// captured; 4xx/5xx fail the node only with throwOnError.
type httpHandler struct{}

func (httpHandler) Kind() schema.NodeType { return schema.NodeHTTP }

func (httpHandler) RawProperties() []string { return []string{"headers"} }

func (httpHandler) Validate(node *schema.Node) error {
	if err := requireProps(node, "url"); err != nil {
		return err
	}
	raw := node.Prop("url")
	if !strings.Contains(raw, "{{") {
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return schema.NewErrorf(schema.ErrCodeValidation, "http node %q: invalid url %q", node.ID, raw).WithNode(node.ID)
		}
	}
	return validateJSONMapProp(node, "headers")
}

func (httpHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	client := call.Providers.HTTP
	if client == nil {
		return nil, providers.Missing("http")
	}

	headers, err := stringMapProp(call.Raw, "headers", call.Scope)
	if err != nil {
		return nil, err
	}
	req := providers.HTTPRequest{
		Method:  call.Prop("method"),
		URL:     call.Prop("url"),
		Headers: headers,
		Body:    call.Prop("body"),
		Timeout: durationProp(call.Props, "timeout"),
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	body := decodeMaybeJSON(string(resp.Body))
	result := map[string]any{
		"status":  resp.StatusCode,
		"body":    body,
		"headers": resp.Headers,
	}

	if resp.StatusCode >= 400 && boolProp(call.Props, "throwOnError", false) {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "%s %s returned %d",
			strings.ToUpper(orDefault(req.Method, "GET")), req.URL, resp.StatusCode).
			WithDetails(result)
	}

	out := success(result).save(call.Prop("saveTo"), body)
	out.save(call.Prop("saveStatusTo"), resp.StatusCode)
	out.save(call.Prop("saveHeadersTo"), resp.Headers)
	out.Input = map[string]any{
		"method":  strings.ToUpper(orDefault(req.Method, "GET")),
		"url":     req.URL,
		"headers": headers,
		"body":    req.Body,
	}
	return out, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
