package conversation

import "strings"

// BuildConversationHistory renders messages as the transcript the triage
// model expects: one "PATIENT:" or "YOU:" line per message in insertion
// order. System and staff messages never reach the model this way.
func BuildConversationHistory(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		var label string
		switch m.Role {
		case RolePatient:
			label = "PATIENT: "
		case RoleAssistant:
			label = "YOU: "
		default:
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(label)
		b.WriteString(m.Content)
	}
	return b.String()
}

// joinContext builds the assessment transcript from raw patient utterances.
func joinContext(parts []string) string {
	return strings.Join(parts, " ")
}
