package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swiss-ai-center/text2audio/audio"
	"github.com/swiss-ai-center/text2audio/pkg/net"
)

// MediaTypeOgg tags every audio result produced by the bridge.
const MediaTypeOgg = "audio/ogg"

var (
	ErrInvalidDescriptor      = errors.New("json_description is invalid")
	ErrMissingField           = errors.New("api_url or api_token missing from json_description")
	ErrUpstreamUnavailable    = errors.New("inference endpoint unreachable")
	ErrUnsupportedAudioFormat = errors.New("response is not a supported audio container")
)

// UpstreamError is a failure reported by the inference endpoint itself,
// typically while the model is still loading. The message is surfaced
// verbatim so callers can decide whether to retry.
type UpstreamError struct {
	Message string
	// might be something like
	// {"error":"Model facebook/musicgen-small is currently loading","estimated_time":53.62}
	EstimatedTime float64
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// Descriptor names the upstream inference endpoint and its credential.
type Descriptor struct {
	APIToken string `json:"api_token"`
	APIURL   string `json:"api_url"`
}

// InferencePayload is the request body the inference API expects.
type InferencePayload struct {
	Inputs string `json:"inputs"`
}

// AudioResult is the transcoded output of one inference call.
type AudioResult struct {
	Data      []byte
	MediaType string
	Source    audio.Format
	Duration  time.Duration
}

// Bridge forwards a text prompt to a text-to-audio inference endpoint and
// converts whatever comes back into an Ogg container. It holds no state
// across calls.
type Bridge struct {
	client     *http.Client
	transcoder audio.Transcoder
}

// New creates a Bridge using the given HTTP client for upstream calls. The
// client deliberately carries no timeout here; cancellation is the caller's
// context.
func New(client *http.Client, transcoder audio.Transcoder) *Bridge {
	if client == nil {
		client = &http.Client{}
	}
	return &Bridge{
		client:     client,
		transcoder: transcoder,
	}
}

// Process runs one inference exchange: parse the descriptor, POST the
// prompt, check the response for an upstream error object, then transcode
// the audio to Ogg. Every failure is terminal for the call.
func (b *Bridge) Process(ctx context.Context, jsonDescription, inputText []byte) (*AudioResult, error) {
	desc := Descriptor{}
	if err := json.Unmarshal(jsonDescription, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if desc.APIToken == "" || desc.APIURL == "" {
		return nil, ErrMissingField
	}

	payload, err := json.Marshal(InferencePayload{Inputs: string(inputText)})
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %v", err)
	}

	log.Debugf("inference request to %s: %s", desc.APIURL, payload)
	res, err := net.SendRequest(ctx, b.client, http.MethodPost, desc.APIURL, bytes.NewBuffer(payload), net.ContentTypeJSON, desc.APIToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if uerr := upstreamError(res); uerr != nil {
		log.Errorf("%s", uerr.Message)
		if uerr.EstimatedTime > 0 {
			log.Debugf("model ready in an estimated %.2fs", uerr.EstimatedTime)
		}
		return nil, uerr
	}

	info, err := audio.Probe(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAudioFormat, err)
	}
	log.Debugf("decoded %s audio: %d Hz, %d channel(s), %s", info.Container, info.SampleRate, info.NumChannels, info.Duration)

	ogg, err := b.transcoder.ToOgg(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAudioFormat, err)
	}

	return &AudioResult{
		Data:      ogg,
		MediaType: MediaTypeOgg,
		Source:    info.Container,
		Duration:  info.Duration,
	}, nil
}

// upstreamError reports whether body is a JSON object carrying an error
// key. The HTTP status is never consulted; the inference API signals model
// problems through the body.
func upstreamError(body []byte) *UpstreamError {
	tmp := map[string]interface{}{}
	if err := json.Unmarshal(body, &tmp); err != nil {
		return nil
	}
	v, ok := tmp["error"]
	if !ok {
		return nil
	}
	uerr := &UpstreamError{Message: fmt.Sprintf("%v", v)}
	if t, ok := tmp["estimated_time"].(float64); ok {
		uerr.EstimatedTime = t
	}
	return uerr
}
