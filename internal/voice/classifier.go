package voice

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// CommandType is the envelope type that marks a voice command.
	CommandType = "tts_dynamic"

	envelopeSchemaURL = "https://mqtt-voice.local/schema/voice-envelope.json"

	// envelopeSchema describes {"type":"tts_dynamic","txt":"..."}.
	// Extra properties are allowed; txt must be a string.
	envelopeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type", "txt"],
	"properties": {
		"type": {"const": "tts_dynamic"},
		"txt": {"type": "string"}
	}
}`
)

// envelope is compiled once; the schema is a constant so failure is a build defect.
var envelope = mustCompileEnvelope()

func mustCompileEnvelope() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		panic("voice: add envelope schema: " + err.Error())
	}
	return compiler.MustCompile(envelopeSchemaURL)
}

// Classify decides how a raw payload should be treated.
//
// The payload is decoded as UTF-8 (invalid sequences become U+FFFD). If it
// parses as JSON and matches the tts_dynamic envelope, the txt field becomes
// the command text; a blank txt yields KindIgnored. Everything else is
// KindPlainText carrying the decoded payload exactly as received.
//
// Classify never fails; parse errors are the expected plain-text path.
func Classify(raw []byte) Classified {
	text := decodeText(raw)
	result := Classified{
		Kind:     KindPlainText,
		Text:     text,
		Original: raw,
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return result
	}

	if err := envelope.Validate(doc); err != nil {
		return result
	}

	// Validate guarantees an object with a string txt.
	fields, _ := doc.(map[string]any)
	txt, _ := fields["txt"].(string)
	if strings.TrimSpace(txt) == "" {
		return Classified{Kind: KindIgnored, Original: raw}
	}

	return Classified{
		Kind:     KindVoiceCommand,
		Text:     txt,
		Original: raw,
	}
}

// decodeText converts the payload to a string, replacing invalid UTF-8.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}
