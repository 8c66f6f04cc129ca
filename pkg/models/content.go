package models

// GeneratedContent is a piece of AI-generated (or statically substituted)
// learning content. Text is always set; Audio carries synthesized speech
// bytes for audio-modality requests. A fallback response carries text only,
// which the speech playback capability can always consume.
type GeneratedContent struct {
	Text  string `json:"text"`
	Audio []byte `json:"audio,omitempty"`
}

// SizeHint returns the approximate in-memory size of the content, used by
// the response cache for its capacity accounting.
func (c GeneratedContent) SizeHint() int {
	return len(c.Text) + len(c.Audio)
}
