package server

import (
	"strings"

	"github.com/morezero/calldef/pkg/registry"
)

// openAPI3 types for generating a document from operation descriptions.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// openAPI3PathItem is keyed by lower-case method.
type openAPI3PathItem map[string]*openAPI3Operation

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	Tags        []string                    `json:"tags,omitempty"`
	Parameters  []openAPI3Parameter         `json:"parameters,omitempty"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3Parameter struct {
	Name     string                 `json:"name"`
	In       string                 `json:"in"`
	Required bool                   `json:"required"`
	Schema   map[string]interface{} `json:"schema"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// buildOpenAPISpec builds an OpenAPI 3.0 document with one path per operation.
// Allow-list bodies list their properties; complement bodies accept any object.
func buildOpenAPISpec(title, version string, ops []registry.Description) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem)
	for _, d := range ops {
		path := "/" + d.OperationPath
		var params []openAPI3Parameter
		for _, p := range d.PathParams {
			path += "/{" + p + "}"
			params = append(params, openAPI3Parameter{Name: p, In: "path", Required: true, Schema: map[string]interface{}{"type": "string"}})
		}
		for _, q := range d.QueryParams {
			params = append(params, openAPI3Parameter{Name: q, In: "query", Schema: map[string]interface{}{}})
		}

		op := &openAPI3Operation{
			Summary:     d.Name,
			Description: d.Description,
			OperationID: d.Name,
			Tags:        []string{d.API},
			Parameters:  params,
			Responses: map[string]openAPI3Response{
				"200": {
					Description: "Success",
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: map[string]interface{}{}},
					},
				},
				"default": {Description: "Error response from the gateway"},
			},
		}
		if d.Method != "GET" {
			op.RequestBody = &openAPI3RequestBody{
				Content: map[string]openAPI3MediaType{
					"application/json": {Schema: bodySchema(&d)},
				},
			}
		}

		item := paths[path]
		if item == nil {
			item = openAPI3PathItem{}
			paths[path] = item
		}
		item[strings.ToLower(d.Method)] = op
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       title,
			Description: "Operations dispatched by calldef",
			Version:     version,
		},
		Paths: paths,
	}
}

func bodySchema(d *registry.Description) map[string]interface{} {
	if d.BodyParams == nil {
		return map[string]interface{}{"type": "object", "additionalProperties": true}
	}
	props := make(map[string]interface{}, len(d.BodyParams))
	for _, b := range d.BodyParams {
		props[b] = map[string]interface{}{}
	}
	return map[string]interface{}{"type": "object", "properties": props, "additionalProperties": false}
}
