package service

import (
	"github.com/swiss-ai-center/text2audio/bridge"
)

const (
	Name    = "Hugging Face text-to-audio"
	Slug    = "hugging-face-text-to-audio"
	Version = "1.0.0"
	DocsURL = "https://docs.swiss-ai-center.ch/reference/services/hugging-face-text-to-audio/"

	StatusAvailable = "available"

	MediaTypeJSON = "application/json"
	MediaTypeText = "text/plain"
)

// Field describes one named input or output of the service.
type Field struct {
	Name string   `json:"name"`
	Type []string `json:"type"`
}

// Tag classifies the service in the engine's catalog.
type Tag struct {
	Name    string `json:"name"`
	Acronym string `json:"acronym"`
}

// Info is the identity the service advertises to orchestration engines.
type Info struct {
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	URL           string  `json:"url"`
	Summary       string  `json:"summary"`
	Description   string  `json:"description"`
	Status        string  `json:"status"`
	DataInFields  []Field `json:"data_in_fields"`
	DataOutFields []Field `json:"data_out_fields"`
	Tags          []Tag   `json:"tags"`
	HasAI         bool    `json:"has_ai"`
	DocsURL       string  `json:"docs_url"`
}

// NewInfo builds the advertised identity for a deployment reachable at
// serviceURL.
func NewInfo(serviceURL string) Info {
	return Info{
		Name:        Name,
		Slug:        Slug,
		URL:         serviceURL,
		Summary:     apiSummary,
		Description: apiDescription,
		Status:      StatusAvailable,
		DataInFields: []Field{
			{Name: "json_description", Type: []string{MediaTypeJSON}},
			{Name: "input_text", Type: []string{MediaTypeText}},
		},
		DataOutFields: []Field{
			{Name: "result", Type: []string{bridge.MediaTypeOgg}},
		},
		Tags: []Tag{
			{Name: "Natural Language Processing", Acronym: "NLP"},
			{Name: "Audio Generation", Acronym: "AG"},
		},
		HasAI:   true,
		DocsURL: DocsURL,
	}
}

var apiSummary = `This service is used to query text-to-audio models from Hugging Face`

var apiDescription = `The service is used to query text-to-audio AI models from the Hugging Face inference API.

You can choose any model available on the inference API from the Hugging
Face Hub (https://huggingface.co/models) that takes text as input and
outputs audio.

The model endpoint expects the following input structure (json):

    {
        "inputs": "your input text"
    }

This service takes two input files:

- A json file that defines the model you want to use and your access token.
- A text file with the generation prompt.

json_description.json example:

    {
        "api_token": "your_token",
        "api_url": "https://api-inference.huggingface.co/models/facebook/musicgen-small"
    }

This example model is a text-to-music model capable of generating music
samples conditioned on text descriptions.

input_text example:

    liquid drum and bass, atmospheric synths, airy sounds

The model may need some time to load on Hugging Face's side, you may
encounter an error on your first try.

Helpful trick: the answer from the inference API is cached, so if you
encounter a loading error try to change the input to check if the model is
loaded.

The audio returned by the model must be in wav, flac, ogg or mp3 form;
the service converts it and always delivers the result as an ogg file.
`
