package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/doorcam/internal/capture"
	"github.com/ayusman/doorcam/internal/notify"
)

const testFrames = 10

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send a test message to the configured Telegram chat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		n, err := newNotifier()
		if err != nil {
			return err
		}
		if err := n.SendText(cmd.Context(), notify.TestMessage()); err != nil {
			return fmt.Errorf("test message failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Test message sent to chat %s\n", cfg.ChatID)
		return nil
	},
}

var testCameraCmd = &cobra.Command{
	Use:   "test-camera",
	Short: "Open the camera and grab a few frames",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cam := capture.NewCamera(capture.Options{
			DeviceID: cfg.CameraIndex,
			Width:    cfg.Width,
			Height:   cfg.Height,
			FPS:      cfg.FPS,
		})

		fmt.Fprintf(out, "Opening camera %d at %dx%d @ %d fps\n", cfg.CameraIndex, cfg.Width, cfg.Height, cfg.FPS)
		if err := cam.Open(); err != nil {
			fmt.Fprintln(out, "Check the USB connection, `ls /dev/video*` and membership of the video group.")
			return err
		}
		defer cam.Close()

		res := cam.Actual()
		fmt.Fprintf(out, "Camera opened: %dx%d @ %.0f fps\n", res.Width, res.Height, res.FPS)

		ok := 0
		for i := 1; i <= testFrames; i++ {
			frame, err := cam.ReadFrame()
			if err != nil {
				fmt.Fprintf(out, "  frame %d/%d: %v\n", i, testFrames, err)
				continue
			}
			fmt.Fprintf(out, "  frame %d/%d: %dx%d\n", i, testFrames, frame.Cols(), frame.Rows())
			frame.Close()
			ok++
		}

		if ok < testFrames {
			return fmt.Errorf("captured %d/%d frames", ok, testFrames)
		}
		fmt.Fprintf(out, "Camera test successful (%d/%d frames)\n", ok, testFrames)
		return nil
	},
}
