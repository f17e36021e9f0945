package common

// MaxUploadSize caps the body of a compute request, covering both input
// parts. Prompts are tiny; the limit mostly guards against clients posting
// audio files into the wrong service.
const MaxUploadSize = 4096 * 1024
