package audio

import "testing"

func TestSpeechText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops emoji and emphasis",
			in:   "Sorry to hear that 😟 **how long** has the fever lasted?",
			want: "Sorry to hear that how long has the fever lasted?",
		},
		{
			name: "keeps link label",
			in:   "See [the clinic](https://example.org/clinic) today.",
			want: "See the clinic today.",
		},
		{
			name: "strips list markers",
			in:   "Please tell me:\n- your age\n2. any allergies",
			want: "Please tell me: your age any allergies",
		},
		{
			name: "drops guideline citations",
			in:   "Give ORS after each loose stool [2] (see section MD-4).",
			want: "Give ORS after each loose stool.",
		},
		{
			name: "drops bracketed section ids",
			in:   "Refer urgently [CHW-2.1], danger signs present.",
			want: "Refer urgently, danger signs present.",
		},
		{
			name: "spells out dosing shorthand",
			in:   "Paracetamol 500mg BD for 3 days",
			want: "Paracetamol 500 milligrams twice daily for 3 days",
		},
		{
			name: "reads vitals",
			in:   "Temperature 39.2 °C, BP 150/95 mmHg",
			want: "Temperature 39.2 degrees Celsius, BP 150 over 95",
		},
		{
			name: "keeps tone marks",
			in:   "Ṣé ara rẹ̀ le?",
			want: "Ṣé ara rẹ̀ le?",
		},
		{
			name: "keeps plain fractions",
			in:   "Take 1/4 tablet",
			want: "Take 1/4 tablet",
		},
		{
			name: "only symbols",
			in:   "✅ ***",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SpeechText(tc.in); got != tc.want {
				t.Fatalf("SpeechText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
