// Package main is a doorcam hook that shows a desktop notification.
// It uses notify-send on Linux and AppleScript on macOS.
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
	Event     string    `json:"event"`
	Detection Detection `json:"detection"`
}

// Detection is the subset of the event this hook reads.
type Detection struct {
	ID             string  `json:"id"`
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	PersonName     string  `json:"person_name"`
	ImagePath      string  `json:"image_path"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	title, body := render(req.Detection)
	if err := notify(title, body, req.Detection.ImagePath); err != nil {
		writeErrorResponse(fmt.Sprintf("notify failed: %v", err))
		return
	}

	writeSuccessResponse()
}

func render(d Detection) (string, string) {
	name := d.PersonName
	if name == "" {
		name = "unknown"
	}
	title := "Person at the door"
	if d.Classification == "INTRUDER" {
		title = "Intruder alert"
	}
	return title, fmt.Sprintf("%s (%.0f%%)", name, d.Confidence*100)
}

func notify(title, body, image string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		cmd = exec.Command("osascript", "-e", script)
	default:
		args := []string{"--app-name=doorcam", title, body}
		if image != "" {
			args = append([]string{"--icon=" + image}, args...)
		}
		cmd = exec.Command("notify-send", args...)
	}

	output, err := cmd.CombinedOutput()
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
