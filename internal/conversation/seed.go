package conversation

import (
	"time"

	"carerelay/internal/domain"
	"carerelay/internal/waveform"
)

// Seed returns a short starter conversation used by `carerelay init --seed`
// so a fresh install has something to show in both views.
func Seed(now time.Time) []domain.ConversationEntry {
	base := now.UnixMilli()
	mk := func(id string, sender domain.Role, ref string, minutesAgo int64) domain.ConversationEntry {
		return domain.ConversationEntry{
			ID:        id,
			Sender:    sender,
			Content:   domain.AudioContent(ref),
			Waveform:  waveform.Generate(ref, waveform.DefaultLength),
			Timestamp: base - minutesAgo*60*1000,
		}
	}
	return []domain.ConversationEntry{
		mk("doc-1", domain.RoleDoctor, "/audios/doctor-message-1.mp3", 20),
		mk("patient-1", domain.RolePatient, "/audios/patient-response-1.mp3", 15),
		mk("doc-2", domain.RoleDoctor, "/audios/doctor-message-2.mp3", 10),
		mk("patient-2", domain.RolePatient, "/audios/patient-response-2.mp3", 5),
	}
}
