// Package main is a doorcam hook that plays an alarm sound for intruders.
// The sound file comes from DOORCAM_SIREN_SOUND, falling back to a system sound.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the hook executor.
type Request struct {
	Event string `json:"event"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// players maps an OS to the command that plays a sound file.
var players = map[string]string{
	"darwin": "afplay",
	"linux":  "aplay",
}

var defaultSounds = map[string]string{
	"darwin": "/System/Library/Sounds/Sosumi.aiff",
	"linux":  "/usr/share/sounds/alsa/Front_Center.wav",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "INTRUDER" {
		writeSuccessResponse()
		return
	}

	if err := play(); err != nil {
		writeErrorResponse(fmt.Sprintf("siren failed: %v", err))
		return
	}
	writeSuccessResponse()
}

func play() error {
	player, ok := players[runtime.GOOS]
	if !ok {
		return fmt.Errorf("unsupported OS %s", runtime.GOOS)
	}

	sound := os.Getenv("DOORCAM_SIREN_SOUND")
	if sound == "" {
		sound = defaultSounds[runtime.GOOS]
	}
	if _, err := os.Stat(sound); err != nil {
		return fmt.Errorf("sound file: %w", err)
	}

	output, err := exec.Command(player, sound).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
