package domain

import "time"

// BotStatusDone is the platform status of a bot whose meeting has ended and
// whose recording has been processed.
const BotStatusDone = "done"

// Bot is a meeting-platform bot session. Each completed bot is one source
// meeting for a series.
type Bot struct {
	ID            string
	Name          string
	Status        string
	ProjectID     string
	SeriesID      string
	MeetingURL    string
	TranscriptURL string
	CreatedAt     *time.Time
}

// Indexable reports whether the bot's meeting is finished and has a
// retrievable transcript.
func (b Bot) Indexable() bool {
	return b.Status == BotStatusDone && b.TranscriptURL != ""
}

// Utterance is one speaker turn from a meeting transcript. Times are seconds
// relative to the start of the recording.
type Utterance struct {
	Speaker   string
	Text      string
	StartTime float64
	EndTime   float64
}
