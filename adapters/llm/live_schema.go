package llm

import (
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// toGenaiTools converts the capability manifest to genai function declarations
func toGenaiTools(decls []repositories.ToolDeclaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}

	functions := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(d.Parameters)),
		}
		for _, p := range d.Parameters {
			prop := &genai.Schema{
				Type:        genaiType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
				Minimum:     p.Min,
				Maximum:     p.Max,
			}
			if p.MaxLength > 0 {
				maxLength := int64(p.MaxLength)
				prop.MaxLength = &maxLength
			}
			schema.Properties[p.Name] = prop
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		functions = append(functions, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: functions}}
}

func genaiType(t repositories.ParamType) genai.Type {
	switch t {
	case repositories.ParamNumber:
		return genai.TypeNumber
	case repositories.ParamInteger:
		return genai.TypeInteger
	case repositories.ParamBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// jsonSchema renders the parameters of d as a JSON schema object for the
// raw websocket protocol
func jsonSchema(d repositories.ToolDeclaration) map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := []string{}
	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        strings.ToUpper(string(p.Type)),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		if p.MaxLength > 0 {
			prop["maxLength"] = strconv.Itoa(p.MaxLength)
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "OBJECT",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func toolResponseFields(r entities.ToolResult) map[string]any {
	if r.Fields == nil {
		return map[string]any{}
	}
	return r.Fields
}

// sampleRateFromMIME extracts the rate parameter of an audio/pcm MIME type
func sampleRateFromMIME(mime string, fallback int) int {
	for _, part := range strings.Split(mime, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}

func pcmMIME(sampleRate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(sampleRate)
}
