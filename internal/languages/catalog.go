// Package languages is the single source of truth for per-language conversation
// settings: greeting, UI labels and the synthesis voice.
package languages

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Code is a supported conversation language.
type Code string

const (
	English Code = "en"
	Hausa   Code = "ha"
	Yoruba  Code = "yo"
	Igbo    Code = "ig"
	Pidgin  Code = "pcm"
)

// Primary is the assessment language. Replies in any other language get a
// parallel English transcript for clinician transparency.
const Primary = English

// Language holds everything the conversation engine needs for one language.
type Language struct {
	Code            Code   `yaml:"code" json:"code"`
	Name            string `yaml:"name" json:"name"`
	NativeName      string `yaml:"native_name" json:"native_name"`
	Greeting        string `yaml:"greeting" json:"greeting"`
	Placeholder     string `yaml:"placeholder" json:"placeholder"`
	CompleteLabel   string `yaml:"complete_label" json:"complete_label"`
	ThinkingLabel   string `yaml:"thinking_label" json:"thinking_label"`
	AssessmentLabel string `yaml:"assessment_label" json:"assessment_label"`
	RestartLabel    string `yaml:"restart_label" json:"restart_label"`
	TranscribeCode  string `yaml:"transcribe_code" json:"transcribe_code"`
	VoiceID         string `yaml:"voice_id" json:"voice_id"`
	Order           int    `yaml:"order" json:"order"`
}

// Catalog is an immutable set of languages keyed by code.
type Catalog struct {
	byCode map[Code]Language
}

// Default returns the built-in catalog. Voice ids can be overridden per
// language with COPILOT_VOICE_<CODE>, e.g. COPILOT_VOICE_HA.
func Default() *Catalog {
	langs := []Language{
		{
			Code:            English,
			Name:            "English",
			NativeName:      "English",
			Greeting:        "Hello! How are you feeling today?",
			Placeholder:     "Describe your symptoms...",
			CompleteLabel:   "Complete Assessment",
			ThinkingLabel:   "Analysing your symptoms...",
			AssessmentLabel: "Health Assessment",
			RestartLabel:    "New Triage",
			TranscribeCode:  "en",
			VoiceID:         voiceFromEnv(English, "EXAVITQu4vr4xnSDxMaL"),
			Order:           0,
		},
		{
			Code:            Hausa,
			Name:            "Hausa",
			NativeName:      "Hausa",
			Greeting:        "Sannu! Ina nan don taimaka maka da lafiyarka. Zaka iya rubuta ko amfani da microphone. Ka faɗa mini — yaya kake ji?",
			Placeholder:     "Faɗa alamun rashin lafiyar ka...",
			CompleteLabel:   "Kammala Gwajin",
			ThinkingLabel:   "Ina nazarin alamunka...",
			AssessmentLabel: "Gwajin Lafiya",
			RestartLabel:    "Fara Gwajin Sabon",
			TranscribeCode:  "en",
			VoiceID:         voiceFromEnv(Hausa, "TBvIh5TNCMX6pQNIcWV8"),
			Order:           1,
		},
		{
			Code:            Yoruba,
			Name:            "Yorùbá",
			NativeName:      "Yorùbá",
			Greeting:        "Ẹ káàárọ̀! Mo wà nibi lati ràn ọ́ lọ́wọ́ pẹ̀lú àwọn àmì àìsàn rẹ. O lè tẹ̀ àbọ̀ tàbí lo microphone. Jọ̀wọ́ sọ fún mi — bí o ṣe ń ní?",
			Placeholder:     "Sọ àwọn àmì àìsàn rẹ...",
			CompleteLabel:   "Parí Ìdánwò",
			ThinkingLabel:   "Mo ń ṣe àyẹ̀wò àwọn àmì rẹ...",
			AssessmentLabel: "Ìdánwò Ìlera",
			RestartLabel:    "Bẹ̀rẹ̀ Ìdánwò Tuntun",
			TranscribeCode:  "en",
			// The backend routes Yoruba to its own synthesizer and ignores this id.
			VoiceID: voiceFromEnv(Yoruba, "9Dbo4hEvXQ5l7MXGZFQA"),
			Order:   2,
		},
		{
			Code:            Igbo,
			Name:            "Igbo",
			NativeName:      "Igbo",
			Greeting:        "Nnọọ! Anọ m ebe a iji nyere gị aka na ihe ọ bụ na-eme gị. I nwere ike ịdeere ma ọ bụ iji microphone. Biko gwa m — gị dị etu a?",
			Placeholder:     "Kọọ ihe ọ bụ na-eme gị...",
			CompleteLabel:   "Mechaa Nyocha",
			ThinkingLabel:   "Ana m enyocha ihe ọ bụ na-eme gị...",
			AssessmentLabel: "Nyocha Ahụike",
			RestartLabel:    "Malite Nyocha Ọhụrụ",
			TranscribeCode:  "en",
			VoiceID:         voiceFromEnv(Igbo, "kMy0Co9mV2JmuSM9VcRQ"),
			Order:           3,
		},
		{
			Code:            Pidgin,
			Name:            "Naija Pidgin",
			NativeName:      "Naija Pidgin",
			Greeting:        "How you dey! I dey here to help you check your body. You fit type or use microphone. Tell me — wetin dey do you?",
			Placeholder:     "Tell me wetin dey do you...",
			CompleteLabel:   "Complete Check",
			ThinkingLabel:   "I dey check wetin you tell me...",
			AssessmentLabel: "Body Check",
			RestartLabel:    "Start New Check",
			TranscribeCode:  "en",
			VoiceID:         voiceFromEnv(Pidgin, "8P18CIVcRlwP98FOjZDm"),
			Order:           4,
		},
	}
	c := &Catalog{byCode: make(map[Code]Language, len(langs))}
	for _, l := range langs {
		c.byCode[l.Code] = l
	}
	return c
}

type catalogFile struct {
	Languages []Language `yaml:"languages"`
}

// Load returns the default catalog with entries from a YAML file merged over
// it. Unknown codes are added; known codes have their non-empty fields replaced.
func Load(path string) (*Catalog, error) {
	c := Default()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read languages file: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse languages file: %w", err)
	}
	for i, l := range f.Languages {
		code := Code(strings.ToLower(strings.TrimSpace(string(l.Code))))
		if code == "" {
			return nil, fmt.Errorf("languages file entry %d: code is required", i)
		}
		l.Code = code
		if existing, ok := c.byCode[code]; ok {
			l = merge(existing, l)
		} else {
			if strings.TrimSpace(l.Greeting) == "" {
				return nil, fmt.Errorf("languages file entry %q: greeting is required", code)
			}
			if l.Order == 0 {
				l.Order = len(c.byCode)
			}
		}
		c.byCode[code] = l
	}
	return c, nil
}

// Get returns the language for code and whether it is supported.
func (c *Catalog) Get(code Code) (Language, bool) {
	l, ok := c.byCode[code]
	return l, ok
}

// Lookup returns the language for code, falling back to English.
func (c *Catalog) Lookup(code Code) Language {
	if l, ok := c.byCode[code]; ok {
		return l
	}
	return c.byCode[English]
}

// All returns every language in display order.
func (c *Catalog) All() []Language {
	out := make([]Language, 0, len(c.byCode))
	for _, l := range c.byCode {
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Parse normalises a user-supplied code such as " HA ".
func Parse(raw string) Code {
	return Code(strings.ToLower(strings.TrimSpace(raw)))
}

func merge(base, over Language) Language {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&base.Name, over.Name)
	set(&base.NativeName, over.NativeName)
	set(&base.Greeting, over.Greeting)
	set(&base.Placeholder, over.Placeholder)
	set(&base.CompleteLabel, over.CompleteLabel)
	set(&base.ThinkingLabel, over.ThinkingLabel)
	set(&base.AssessmentLabel, over.AssessmentLabel)
	set(&base.RestartLabel, over.RestartLabel)
	set(&base.TranscribeCode, over.TranscribeCode)
	set(&base.VoiceID, over.VoiceID)
	if over.Order != 0 {
		base.Order = over.Order
	}
	return base
}

func voiceFromEnv(code Code, fallback string) string {
	if v := strings.TrimSpace(os.Getenv("COPILOT_VOICE_" + strings.ToUpper(string(code)))); v != "" {
		return v
	}
	return fallback
}
