package handler

import (
	"encoding/json"
)

// ToolDefinition describes one tool to MCP clients
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

const imageRefProperties = `
		"image_id": {
			"type": "string",
			"description": "Local record id or resource URI (image://remote-image-ai/image/{id}) of a saved image"
		},
		"token": {
			"type": "string",
			"description": "Remote token of an image already stored on the image service"
		},
		"image_base64": {
			"type": "string",
			"description": "Raw base64 image bytes or a data URI. Uploaded once when a token is needed."
		}`

const waitProperties = `
		"poll_interval": {
			"type": "number",
			"description": "Seconds between job polls (1-60)",
			"minimum": 1,
			"maximum": 60
		},
		"timeout": {
			"type": "number",
			"description": "Seconds to wait for the job before returning a job id to continue later (1-1800)",
			"minimum": 1,
			"maximum": 1800
		}`

// ListTools returns the definitions of all tools
func (h *ImageHandler) ListTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "generate_image",
			Description: "Generate an image from a text prompt on the remote image service and save it to the local library.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"prompt": {"type": "string", "description": "Text description of the image to generate"},
					"model": {"type": "string", "description": "Model name; see list_models. The service default is used when omitted."},
					"negative_prompt": {"type": "string", "description": "What to avoid in the image"},
					"guidance_scale": {"type": "number", "description": "How closely to follow the prompt (0-50)", "minimum": 0, "maximum": 50},
					"steps": {"type": "integer", "description": "Inference steps (1-200)", "minimum": 1, "maximum": 200},
					"width": {"type": "integer", "description": "Width in pixels (64-4096)", "minimum": 64, "maximum": 4096},
					"height": {"type": "integer", "description": "Height in pixels (64-4096)", "minimum": 64, "maximum": 4096},
					"seed": {"type": "integer", "description": "Random seed for reproducible results"},
					"scheduler": {"type": "string", "description": "Sampler or scheduler name supported by the model"},
					"filename": {"type": "string", "description": "Optional filename hint for the cached file"},
					"extra": {"type": "object", "description": "Additional model-specific parameters passed through unchanged"}
				},
				"required": ["prompt"]
			}`),
		},
		{
			Name:        "image_to_image",
			Description: "Transform an existing image guided by a prompt. Uses the job endpoint and waits for it; falls back to the synchronous endpoint only when the job endpoint is unavailable.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {` + imageRefProperties + `,` + waitProperties + `,
					"prompt": {"type": "string", "description": "How the image should change"},
					"negative_prompt": {"type": "string", "description": "What to avoid"},
					"model": {"type": "string", "description": "Model name"},
					"strength": {"type": "number", "description": "How far to move from the input image (0-1)", "minimum": 0, "maximum": 1},
					"guidance_scale": {"type": "number", "minimum": 0, "maximum": 50},
					"steps": {"type": "integer", "minimum": 1, "maximum": 200},
					"width": {"type": "integer", "description": "Multiple of 64 between 256 and 2048", "minimum": 256, "maximum": 2048, "multipleOf": 64},
					"height": {"type": "integer", "description": "Multiple of 64 between 256 and 2048", "minimum": 256, "maximum": 2048, "multipleOf": 64},
					"seed": {"type": "integer"},
					"filename": {"type": "string"},
					"extra": {"type": "object"}
				},
				"required": ["prompt"]
			}`),
		},
		{
			Name:        "upscale_image",
			Description: "Upscale an image. Submits an upscale job, waits for it and saves the result with a link to the source token.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {` + imageRefProperties + `,` + waitProperties + `,
					"scale": {"type": "integer", "description": "Upscale factor (1-8)", "minimum": 1, "maximum": 8, "default": 2},
					"filename": {"type": "string"},
					"extra": {"type": "object"}
				}
			}`),
		},
		{
			Name:        "caption_image",
			Description: "Describe an image in words. With save_caption the caption is stored in the image metadata.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {` + imageRefProperties + `,
					"prompt": {"type": "string", "description": "Optional prompt to steer the caption"},
					"max_new_tokens": {"type": "integer", "minimum": 1, "maximum": 512},
					"temperature": {"type": "number", "minimum": 0, "maximum": 2},
					"top_p": {"type": "number", "minimum": 0, "maximum": 1},
					"use_nucleus_sampling": {"type": "boolean"},
					"repetition_penalty": {"type": "number", "minimum": 0.5, "maximum": 2},
					"model_id": {"type": "string", "description": "Captioning model"},
					"save_caption": {"type": "boolean", "description": "Store the caption remotely and in a new local record", "default": false},
					"extra": {"type": "object"}
				}
			}`),
		},
		{
			Name:        "update_image_metadata",
			Description: "Update an image's metadata on the service and in the local library. Uses JSON merge patch rules: null removes a key.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"image_id": {"type": "string", "description": "Local record id or resource URI"},
					"token": {"type": "string", "description": "Remote token"},
					"metadata": {"type": "object", "description": "Merge patch to apply"}
				},
				"required": ["metadata"]
			}`),
		},
		{
			Name:        "store_image_from_url",
			Description: "Have the image service download an http(s) image and save it to the library.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "http or https URL of the image"},
					"prompt": {"type": "string", "description": "Description stored with the image"},
					"tags": {"type": "array", "items": {"type": "string"}},
					"filename": {"type": "string"}
				},
				"required": ["url"]
			}`),
		},
		{
			Name:        "import_image",
			Description: "Upload inline image bytes to the image service and save them to the library.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"image_base64": {"type": "string", "description": "Base64 bytes or data URI"},
					"prompt": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}},
					"metadata": {"type": "object"},
					"filename": {"type": "string"}
				},
				"required": ["image_base64"]
			}`),
		},
		{
			Name:        "get_image",
			Description: "Look up an image by record id, resource URI or token. Optionally embed its bytes.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"image_id": {"type": "string"},
					"resource_uri": {"type": "string"},
					"token": {"type": "string"},
					"include_image": {"type": "boolean", "default": false}
				}
			}`),
		},
		{
			Name:        "list_images",
			Description: "List saved images, newest first. Superseded records are hidden unless include_superseded is set.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"limit": {"type": "integer", "minimum": 1, "maximum": 100, "default": 20},
					"offset": {"type": "integer", "minimum": 0, "default": 0},
					"include_superseded": {"type": "boolean", "default": false}
				}
			}`),
		},
		{
			Name:        "search_images",
			Description: "Search saved images by prompt, model, caption and tags.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string"},
					"limit": {"type": "integer", "minimum": 1, "maximum": 100, "default": 10}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        "list_models",
			Description: "List the models offered by the image service.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"refresh": {"type": "boolean", "description": "Bypass the cached catalog", "default": false}
				}
			}`),
		},
		{
			Name:        "get_model",
			Description: "Show the configuration of one model.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string"}
				},
				"required": ["name"]
			}`),
		},
		{
			Name:        "optimize_parameters",
			Description: "Suggest a prompt, model and generation parameters for a free-text request.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "What the user wants to create"},
					"model": {"type": "string", "description": "Model to optimize for"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        "check_job",
			Description: "Report the status of a remote job without waiting.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"job_id": {"type": "string"}
				},
				"required": ["job_id"]
			}`),
		},
		{
			Name:        "continue_job",
			Description: "Wait again for a job that was still running when its tool call returned, and save its result.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"job_id": {"type": "string"},` + waitProperties + `
				},
				"required": ["job_id"]
			}`),
		},
	}
}
