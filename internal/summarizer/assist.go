package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultTargetLanguage is used when a translation names no target.
const DefaultTargetLanguage = "es"

// ErrEmptyText is returned for blank translation or chat input.
var ErrEmptyText = errors.New("no text provided")

var languageNames = map[string]string{
	"af": "Afrikaans", "sq": "Albanian", "am": "Amharic", "ar": "Arabic", "hy": "Armenian",
	"az": "Azerbaijani", "eu": "Basque", "be": "Belarusian", "bn": "Bengali", "bs": "Bosnian",
	"bg": "Bulgarian", "ca": "Catalan", "ceb": "Cebuano", "ny": "Chichewa", "zh": "Chinese",
	"zh-cn": "Chinese (Simplified)", "zh-tw": "Chinese (Traditional)", "co": "Corsican",
	"hr": "Croatian", "cs": "Czech", "da": "Danish", "nl": "Dutch", "en": "English",
	"eo": "Esperanto", "et": "Estonian", "tl": "Filipino", "fi": "Finnish", "fr": "French",
	"fy": "Frisian", "gl": "Galician", "ka": "Georgian", "de": "German", "el": "Greek",
	"gu": "Gujarati", "ht": "Haitian Creole", "ha": "Hausa", "haw": "Hawaiian", "he": "Hebrew",
	"iw": "Hebrew", "hi": "Hindi", "hmn": "Hmong", "hu": "Hungarian", "is": "Icelandic",
	"ig": "Igbo", "id": "Indonesian", "ga": "Irish", "it": "Italian", "ja": "Japanese",
	"jw": "Javanese", "kn": "Kannada", "kk": "Kazakh", "km": "Khmer", "ko": "Korean",
	"ku": "Kurdish (Kurmanji)", "ky": "Kyrgyz", "lo": "Lao", "la": "Latin", "lv": "Latvian",
	"lt": "Lithuanian", "lb": "Luxembourgish", "mk": "Macedonian", "mg": "Malagasy",
	"ms": "Malay", "ml": "Malayalam", "mt": "Maltese", "mi": "Maori", "mr": "Marathi",
	"mn": "Mongolian", "my": "Myanmar (Burmese)", "ne": "Nepali", "no": "Norwegian",
	"or": "Odia", "ps": "Pashto", "fa": "Persian", "pl": "Polish", "pt": "Portuguese",
	"pa": "Punjabi", "ro": "Romanian", "ru": "Russian", "sm": "Samoan", "gd": "Scots Gaelic",
	"sr": "Serbian", "st": "Sesotho", "sn": "Shona", "sd": "Sindhi", "si": "Sinhala",
	"sk": "Slovak", "sl": "Slovenian", "so": "Somali", "es": "Spanish", "su": "Sundanese",
	"sw": "Swahili", "sv": "Swedish", "tg": "Tajik", "ta": "Tamil", "te": "Telugu",
	"th": "Thai", "tr": "Turkish", "uk": "Ukrainian", "ur": "Urdu", "ug": "Uyghur",
	"uz": "Uzbek", "vi": "Vietnamese", "cy": "Welsh", "xh": "Xhosa", "yi": "Yiddish",
	"yo": "Yoruba", "zu": "Zulu",
}

// LanguageName maps a language code to its display name. Unknown codes map
// to Spanish.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return languageNames[DefaultTargetLanguage]
}

const translatePrompt = `You are a professional translator. Translate the given text to %s. Respond only with the translated text, no additional formatting or explanations.

Text to translate: %s
`

// Translate translates text into the language named by target. A blank
// reply after all retries is reported as ErrEmptyResponse.
func (e *Engine) Translate(ctx context.Context, text, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	lang := LanguageName(target)
	resp, err := e.complete(ctx, fmt.Sprintf(translatePrompt, lang, text))
	if err != nil {
		return "", fmt.Errorf("translate to %s: %w", lang, err)
	}
	return strings.TrimSpace(resp), nil
}

const assistantPrompt = `You are the AI assistant for a meeting notes service.

About the service:
- It turns recordings from Zoom, Google Meet and Teams into structured, actionable meeting notes.
- Features: transcription, translation, text cleaning, summarization, spreadsheet export.

Your role:
- If the user asks about the service, explain it in a professional but friendly way.
- If the user provides transcripts, summarize them and highlight key points, action items and decisions.
- Keep responses concise, clear and helpful.

User: %s`

// canned replies used when the completion service cannot answer
var assistantFallbacks = []struct {
	keywords []string
	reply    string
}{
	{[]string{"feature", "what can", "capability"},
		"The service offers transcription of meeting recordings, translation, AI-powered text cleaning, and smart summarization with key points, action items and decisions, plus spreadsheet export. What would you like to know more about?"},
	{[]string{"about", "website", "company"},
		"This is an AI-powered meeting notes service that converts recordings from popular meeting platforms into structured, actionable notes, so your meetings are easier to follow."},
	{[]string{"how", "tutorial", "guide", "start"},
		"Getting started is simple: upload your meeting recording, let the service transcribe and process it, review the generated notes, then export them. Need help with a specific step?"},
	{[]string{"help", "support", "problem"},
		"I'm here to help! Ask me about features, how to use the service, or share meeting content for me to summarize. What specific question do you have?"},
}

const assistantDefault = "Thanks for your question! I can help with features, how to use the service, or analysing meeting content. How can I assist you today?"

// FallbackReply picks a canned answer by keyword.
func FallbackReply(message string) string {
	lower := strings.ToLower(message)
	for _, f := range assistantFallbacks {
		for _, kw := range f.keywords {
			if strings.Contains(lower, kw) {
				return f.reply
			}
		}
	}
	return assistantDefault
}

// Reply answers a user message. It never fails on a completion error: the
// keyword fallback is returned instead and ai is false.
func (e *Engine) Reply(ctx context.Context, message string) (reply string, ai bool, err error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", false, ErrEmptyText
	}
	resp, err := e.complete(ctx, fmt.Sprintf(assistantPrompt, message))
	if err != nil {
		e.log.WithField("error", err.Error()).Warn("assistant reply failed, using fallback")
		return FallbackReply(message), false, nil
	}
	return strings.TrimSpace(resp), true, nil
}
