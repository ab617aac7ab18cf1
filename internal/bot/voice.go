package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/mailbot/internal/attachment"
	"github.com/shineum/mailbot/internal/voice"
)

const (
	msgVoiceDisabled = "Voice messages are not enabled."
	msgNoSpeech      = "No audio detected. Check microphone or speak louder."
	msgVoiceFailed   = "Failed to transcribe voice."
)

// transcribe turns the first audio attachment of a message without text
// into the text to handle. The remaining attachments are returned so the
// voice clip is never mailed. ok is false when there is nothing to handle.
func (b *Bot) transcribe(ctx context.Context, msg Message, r Responder) (text string, rest []attachment.Remote, ok bool) {
	audio := -1
	for i, f := range msg.Attachments {
		if f.IsAudio() {
			audio = i
			break
		}
	}
	if audio < 0 {
		return "", nil, false
	}
	if _, off := b.transcriber.(voice.Disabled); off {
		post(r, msgVoiceDisabled)
		return "", nil, false
	}

	rest = make([]attachment.Remote, 0, len(msg.Attachments)-1)
	rest = append(rest, msg.Attachments[:audio]...)
	rest = append(rest, msg.Attachments[audio+1:]...)

	res, err := b.downloader.Download(ctx, msg.Attachments[audio:audio+1])
	if err != nil || len(res.Paths) == 0 {
		slog.Warn("failed to fetch voice message", "requester", msg.RequesterID, "error", err)
		post(r, msgVoiceFailed)
		return "", nil, false
	}
	defer attachment.Cleanup(res.Paths)

	text, err = b.transcriber.Transcribe(ctx, res.Paths[0])
	switch {
	case errors.Is(err, voice.ErrDisabled):
		post(r, msgVoiceDisabled)
		return "", nil, false
	case errors.Is(err, voice.ErrNoSpeech):
		post(r, msgNoSpeech)
		return "", nil, false
	case err != nil:
		slog.Error("transcription failed", "requester", msg.RequesterID, "error", err)
		post(r, msgVoiceFailed)
		return "", nil, false
	}

	slog.Info("voice message transcribed", "requester", msg.RequesterID, "chars", len(text))
	post(r, fmt.Sprintf("Heard: %q", text))
	return text, rest, true
}
