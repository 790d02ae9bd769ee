package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SubprocessRecognizer shells out to an external transcriber for each
// utterance: WAV on stdin, transcript on stdout. Useful for local models
// (whisper.cpp and friends) without binding the hub to their libraries.
type SubprocessRecognizer struct {
	command    string
	args       []string
	sampleRate int
}

func NewSubprocessRecognizer(command string, args []string, sampleRate int) *SubprocessRecognizer {
	return &SubprocessRecognizer{command: command, args: args, sampleRate: sampleRate}
}

func (r *SubprocessRecognizer) Recognize(ctx context.Context, audio []byte) (string, error) {
	if r.command == "" {
		return "", fmt.Errorf("subprocess recognizer has no command configured")
	}

	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Stdin = bytes.NewReader(wavFromPCM(audio, r.sampleRate))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("transcriber %s: %w: %s", r.command, err, msg)
		}
		return "", fmt.Errorf("transcriber %s: %w", r.command, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
