package session

import "errors"

var (
	// ErrEmptyTranscription names a turn trigger that fired with no
	// accumulated text. handleSpeechEnded ignores such triggers without
	// returning it.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrLLMFailed wraps a failed language-model generation.
	ErrLLMFailed = errors.New("language model generation failed")

	// ErrTTSFailed wraps a failed text-to-speech synthesis.
	ErrTTSFailed = errors.New("text-to-speech synthesis failed")

	// ErrSTTFailed wraps a failed speech-to-text connection or send.
	ErrSTTFailed = errors.New("speech-to-text failed")

	// ErrNilProvider is returned when a required client is nil.
	ErrNilProvider = errors.New("required streaming client is nil")

	// ErrSessionClosed names an operation on a closed session. No Session
	// method returns it; repeated Close calls are no-ops returning nil.
	ErrSessionClosed = errors.New("session already closed")

	// ErrNotConnected is returned (wrapped) by Session Manager media
	// routing for an unknown stream id.
	ErrNotConnected = errors.New("no session for stream id")

	// ErrBargeIn names a turn cancelled by barge-in. The session cancels a
	// pending turn with a plain context cancel, so GenerateStream sees
	// context.Canceled rather than this value.
	ErrBargeIn = errors.New("cancelled by barge-in")
)
