package tools

import "regexp"

// Patterns scrubbed from capability output before it reaches the model or an
// archived transcript. yt-dlp and ffmpeg echo full request URLs, which may
// carry signed query parameters.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	// Google API keys (YouTube data API)
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer|authorization|cookie)\s*[:=]\s*["']?\S{8,}["']?`),
}

// signedParam keeps the parameter name so the URL stays readable.
var signedParam = regexp.MustCompile(`(?i)([?&](?:sig|signature|lsig|key|token)=)[^&\s"']{8,}`)

const redactedPlaceholder = "[REDACTED]"

// ScrubCredentials replaces known credential patterns in text with [REDACTED].
func ScrubCredentials(text string) string {
	if text == "" {
		return text
	}
	text = signedParam.ReplaceAllString(text, "${1}"+redactedPlaceholder)
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// scrubbable payloads return a copy of themselves with their text fields
// scrubbed. Capability payload structs implement it so they keep their type.
type scrubbable interface {
	scrubbed() any
}

// ScrubValue applies ScrubCredentials to every string inside a decoded JSON
// value or a scrubbable payload. Other structs are returned unchanged.
func ScrubValue(v any) any {
	switch x := v.(type) {
	case scrubbable:
		return x.scrubbed()
	case string:
		return ScrubCredentials(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = ScrubValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = ScrubValue(val)
		}
		return out
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = ScrubCredentials(s)
		}
		return out
	}
	return v
}

func (m Media) scrubbed() any {
	m.Locator = ScrubCredentials(m.Locator)
	m.Title = ScrubCredentials(m.Title)
	m.Path = ScrubCredentials(m.Path)
	return m
}

// Frame ids and mime types are generated locally; only the handles are
// copied from download output.
func (s FrameSet) scrubbed() any {
	s.Handle = ScrubCredentials(s.Handle)
	frames := make([]Frame, len(s.Frames))
	for i, f := range s.Frames {
		f.Handle = ScrubCredentials(f.Handle)
		frames[i] = f
	}
	s.Frames = frames
	return s
}

func (a Analysis) scrubbed() any {
	a.Observations = ScrubValue(a.Observations).([]string)
	a.SportType = ScrubCredentials(a.SportType)
	return a
}
