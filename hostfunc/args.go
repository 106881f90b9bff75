package hostfunc

import (
	"encoding/base64"
	"fmt"
)

const (
	encodingText   = "text"
	encodingBase64 = "base64"
)

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s required", name)
	}
	return v, nil
}

func optionalString(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return def
}

func encodingArg(args map[string]any) (string, error) {
	enc := optionalString(args, "encoding", encodingText)
	if enc != encodingText && enc != encodingBase64 {
		return "", fmt.Errorf("unsupported encoding: %s", enc)
	}
	return enc, nil
}

func encode(data []byte, enc string) string {
	if enc == encodingBase64 {
		return base64.StdEncoding.EncodeToString(data)
	}
	return string(data)
}

func decode(content, enc string) ([]byte, error) {
	if enc == encodingBase64 {
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 content: %w", err)
		}
		return data, nil
	}
	return []byte(content), nil
}
