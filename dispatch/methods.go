package dispatch

import (
	"encoding/json"
	"fmt"
)

// Kind is the type of a method argument.
type Kind int

const (
	KindString Kind = iota
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindStringList:
		return "list of strings"
	default:
		return "unknown"
	}
}

// Param describes one method argument. Required params must be present and
// well typed; optional ones fall back to Default when absent or null.
type Param struct {
	Name     string
	Kind     Kind
	Required bool
	Default  any
}

// Method binds a method name to an interpreter function.
type Method struct {
	Name   string
	Module string
	Func   string
	Params []Param
	// EmptyCode is reported when the function returns nothing.
	EmptyCode string
	// Data, when set, derives structured data from a successful payload.
	Data func(payload string) map[string]any
	// Local, when set, answers the method without the interpreter.
	Local func(d *Dispatcher) Response
}

// Target returns "module.func", or "local" for host-local methods.
func (m *Method) Target() string {
	if m.Local != nil {
		return "local"
	}
	return m.Module + "." + m.Func
}

// bind turns the argument mapping into positional interpreter arguments.
func (m *Method) bind(args map[string]any) ([]any, error) {
	out := make([]any, 0, len(m.Params))
	for _, p := range m.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("argument %q is required", p.Name)
			}
			out = append(out, p.Default)
			continue
		}

		v, err := convert(p.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", p.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func convert(kind Kind, raw any) (any, error) {
	switch kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil

	case KindStringList:
		switch v := raw.(type) {
		case []string:
			return v, nil
		case []any:
			list := make([]string, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("element %d: expected string, got %T", i, item)
				}
				list[i] = s
			}
			return list, nil
		default:
			return nil, fmt.Errorf("expected list of strings, got %T", raw)
		}
	}
	return nil, fmt.Errorf("unsupported kind %v", kind)
}

// DefaultMethods returns the creek method table.
func DefaultMethods() []Method {
	imagePath := []Param{{Name: "imagePath", Kind: KindString, Required: true}}

	return []Method{
		{
			Name: "analyzeLayout", Module: "analyze_layout", Func: "analyze_single_image",
			Params: imagePath, EmptyCode: CodeAnalysisError,
		},
		{
			Name: "analyzeImage", Module: "analyze_layout", Func: "analyze_single_image",
			Params: imagePath, EmptyCode: CodeAnalysisError,
		},
		{
			Name: "analyzeColorStyle", Module: "color_style_infer", Func: "analyze_color_style",
			Params: imagePath, EmptyCode: CodeAnalysisError,
			Data: colorStyleData,
		},
		{
			Name: "downloadInstagramImage", Module: "instagram_downloader", Func: "download_instagram_image",
			Params: []Param{
				{Name: "url", Kind: KindString, Required: true},
				{Name: "outputDir", Kind: KindString, Required: true},
			},
			EmptyCode: CodeDownloadError,
		},
		{
			Name: "generateStylesheet", Module: "stylesheet_generator", Func: "generate_stylesheet",
			Params:    []Param{{Name: "jsonList", Kind: KindStringList, Required: true}},
			EmptyCode: CodePythonError,
		},
		{
			Name: "generateMagicPrompt", Module: "stylesheet_generator", Func: "generate_magic_prompt",
			Params: []Param{
				{Name: "stylesheetJson", Kind: KindString, Default: "{}"},
				{Name: "caption", Kind: KindString, Default: ""},
				{Name: "userPrompt", Kind: KindString, Default: ""},
			},
			EmptyCode: CodePythonError,
		},
		{
			Name:  "getShareSource",
			Local: func(d *Dispatcher) Response { return Success(d.intent.ShareSource()) },
		},
	}
}

// colorStyleData exposes the analyzer's JSON report alongside its success
// flag. Payloads that are not a JSON object count as unsuccessful.
func colorStyleData(payload string) map[string]any {
	var report struct {
		Success bool `json:"success"`
	}
	ok := json.Unmarshal([]byte(payload), &report) == nil && report.Success
	return map[string]any{"raw_json": payload, "success": ok}
}
