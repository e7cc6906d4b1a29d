package tool

import "context"

// Display tools render structured UI elements on the client. Their handlers
// echo the validated arguments back as the result: the client owns rendering,
// the server only vouches that the arguments fit the schema.

func echoHandler(_ context.Context, params map[string]any) (*ToolResult, error) {
	if params == nil {
		params = map[string]any{}
	}
	return &ToolResult{Output: params}, nil
}

// NewGenerateForm returns the form display tool.
func NewGenerateForm() Tool {
	return &staticTool{
		name:        "generateForm",
		description: "Render an interactive form with typed input fields. Use when the user should supply structured input.",
		schema: &JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"title": {
					Type:        "string",
					Description: "Form heading shown above the fields.",
				},
				"description": {
					Type:        "string",
					Description: "Optional short text under the heading.",
				},
				"fields": {
					Type:        "array",
					Description: "Ordered list of input fields.",
					Items: &JSONSchema{
						Type: "object",
						Properties: map[string]*JSONSchema{
							"name": {
								Type:        "string",
								Description: "Stable field identifier.",
							},
							"label": {
								Type:        "string",
								Description: "Human-readable field label.",
							},
							"type": {
								Type: "string",
								Enum: []string{
									"text", "textarea", "select", "checkbox",
									"radio", "date", "slider", "file",
									"number", "email",
								},
							},
							"placeholder": {Type: "string"},
							"required":    {Type: "boolean"},
							"options": {
								Type:        "array",
								Description: "Choices for select and radio fields.",
								Items:       &JSONSchema{Type: "string"},
							},
							"min": {Type: "number"},
							"max": {Type: "number"},
						},
						Required: []string{"name", "label", "type"},
					},
				},
				"submitLabel": {
					Type:        "string",
					Description: "Text on the submit button.",
				},
			},
			Required: []string{"title", "fields"},
		},
		handler: echoHandler,
	}
}

// NewGenerateChart returns the chart display tool.
func NewGenerateChart() Tool {
	return &staticTool{
		name:        "generateChart",
		description: "Render a chart from labeled data points. Use for numeric comparisons and trends.",
		schema: &JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"title": {
					Type:        "string",
					Description: "Chart title.",
				},
				"type": {
					Type: "string",
					Enum: []string{"line", "bar", "pie", "area"},
				},
				"data": {
					Type:        "array",
					Description: "Data points in display order.",
					Items: &JSONSchema{
						Type: "object",
						Properties: map[string]*JSONSchema{
							"label": {Type: "string"},
							"value": {Type: "number"},
						},
						Required: []string{"label", "value"},
					},
				},
				"xLabel": {Type: "string"},
				"yLabel": {Type: "string"},
			},
			Required: []string{"title", "type", "data"},
		},
		handler: echoHandler,
	}
}

// NewGenerateCode returns the code display tool.
func NewGenerateCode() Tool {
	return &staticTool{
		name:        "generateCode",
		description: "Render a syntax-highlighted code block with an optional filename header.",
		schema: &JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"language": {
					Type:        "string",
					Description: "Language identifier for highlighting, e.g. go or python.",
				},
				"code": {
					Type:        "string",
					Description: "Source text to display.",
				},
				"filename": {
					Type:        "string",
					Description: "Optional filename shown in the block header.",
				},
			},
			Required: []string{"language", "code"},
		},
		handler: echoHandler,
	}
}

// NewGenerateCard returns the card display tool.
func NewGenerateCard() Tool {
	return &staticTool{
		name:        "generateCard",
		description: "Render a rich card with a title, body, optional media and links.",
		schema: &JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"title": {Type: "string"},
				"body": {
					Type:        "string",
					Description: "Markdown body text.",
				},
				"media": {
					Type: "object",
					Properties: map[string]*JSONSchema{
						"type": {
							Type: "string",
							Enum: []string{"image", "video"},
						},
						"url": {Type: "string"},
						"alt": {Type: "string"},
					},
					Required: []string{"type", "url"},
				},
				"links": {
					Type: "array",
					Items: &JSONSchema{
						Type: "object",
						Properties: map[string]*JSONSchema{
							"label": {Type: "string"},
							"url":   {Type: "string"},
						},
						Required: []string{"label", "url"},
					},
				},
			},
			Required: []string{"title", "body"},
		},
		handler: echoHandler,
	}
}
