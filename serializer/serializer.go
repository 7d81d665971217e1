package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serializer encodes a request entity.
type Serializer interface {
	Serialize(v any) (content []byte, contentType, contentEncoding string, err error)
}

// Deserializer decodes response content into v.
type Deserializer interface {
	Deserialize(content []byte, contentType string, v any) error
}

// Content types produced by the built-in serializers.
const (
	ContentTypeJSON = "application/json"
	ContentTypeYAML = "application/yaml"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// JSON serializes with encoding/json.
type JSON struct {
	// Indent pretty-prints serialized entities when set.
	Indent string
}

var (
	_ Serializer   = JSON{}
	_ Deserializer = JSON{}
)

// Serialize encodes v as JSON.
func (j JSON) Serialize(v any) ([]byte, string, string, error) {
	var (
		b   []byte
		err error
	)
	if j.Indent != "" {
		b, err = json.MarshalIndent(v, "", j.Indent)
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("serializer: marshal json: %w", err)
	}
	return b, ContentTypeJSON, "utf-8", nil
}

// Deserialize decodes JSON content into v.
func (JSON) Deserialize(content []byte, _ string, v any) error {
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("serializer: unmarshal json: %w", err)
	}
	return nil
}

// YAML serializes with gopkg.in/yaml.v3.
type YAML struct{}

var (
	_ Serializer   = YAML{}
	_ Deserializer = YAML{}
)

// Serialize encodes v as YAML.
func (YAML) Serialize(v any) ([]byte, string, string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, "", "", fmt.Errorf("serializer: marshal yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, "", "", fmt.Errorf("serializer: marshal yaml: %w", err)
	}
	return buf.Bytes(), ContentTypeYAML, "utf-8", nil
}

// Deserialize decodes YAML content into v.
func (YAML) Deserialize(content []byte, _ string, v any) error {
	if err := yaml.Unmarshal(content, v); err != nil {
		return fmt.Errorf("serializer: unmarshal yaml: %w", err)
	}
	return nil
}

// Form encodes url.Values, map[string]string or map[string][]string as an
// url-encoded body.
type Form struct{}

var _ Serializer = Form{}

// Serialize encodes v as application/x-www-form-urlencoded.
func (Form) Serialize(v any) ([]byte, string, string, error) {
	var values url.Values
	switch t := v.(type) {
	case url.Values:
		values = t
	case map[string][]string:
		values = url.Values(t)
	case map[string]string:
		values = make(url.Values, len(t))
		for k, s := range t {
			values.Set(k, s)
		}
	default:
		return nil, "", "", fmt.Errorf("serializer: form cannot encode %T", v)
	}
	return []byte(values.Encode()), ContentTypeForm, "utf-8", nil
}

// Auto picks JSON or YAML from the content type, defaulting to JSON.
type Auto struct{}

var _ Deserializer = Auto{}

// Deserialize decodes content with the deserializer matching contentType.
func (Auto) Deserialize(content []byte, contentType string, v any) error {
	if IsYAML(contentType) {
		return YAML{}.Deserialize(content, contentType, v)
	}
	return JSON{}.Deserialize(content, contentType, v)
}

// IsYAML reports whether contentType names a YAML media type.
func IsYAML(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "application/yaml" || mt == "application/x-yaml" || mt == "text/yaml" || strings.HasSuffix(mt, "+yaml")
}

// IsJSON reports whether contentType names a JSON media type.
func IsJSON(contentType string) bool {
	mt := mediaType(contentType)
	return mt == ContentTypeJSON || strings.HasSuffix(mt, "+json")
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
