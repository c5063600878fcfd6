// Command parallax-cli runs the tracking engine over a raw grayscale frame
// sequence and prints per-frame pose and state, for offline debugging of
// recorded camera footage.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/rdk/logging"

	"github.com/biotinker/parallax"
)

func main() {
	input := flag.String("input", "", "path to raw 8-bit grayscale frame sequence")
	width := flag.Int("width", 640, "frame width in pixels")
	height := flag.Int("height", 480, "frame height in pixels")
	seed := flag.Int64("seed", 0, "RNG seed; 0 = time-based")
	planeEvery := flag.Int("plane-interval", 30, "frames between plane detection passes")
	flag.Parse()

	logger := logging.NewLogger("parallax-cli")

	if *input == "" {
		logger.Fatal("-input flag is required")
	}
	f, err := os.Open(*input)
	if err != nil {
		logger.Fatal(err)
	}
	defer f.Close()

	cfg := parallax.DefaultConfig()
	cfg.Seed = *seed
	cfg.PlaneInterval = *planeEvery
	tracker := parallax.New(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	buf := make([]uint8, (*width)*(*height))
	frameNum := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return
		default:
		}

		if _, err := io.ReadFull(f, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				logger.Infof("Done: %d frames processed", frameNum)
				return
			}
			logger.Fatal(err)
		}
		frameNum++

		res, err := tracker.ProcessFrame(*width, *height, buf)
		if err != nil {
			logger.Fatal(err)
		}

		logger.Infof("frame %d: state=%s tracking=%v pos=(%.3f, %.3f, %.3f) conf=%.2f planes=%d targets=%d (%s)",
			frameNum, res.State, res.Tracking,
			res.Pose.Translation.X, res.Pose.Translation.Y, res.Pose.Translation.Z,
			res.Pose.Confidence, len(res.Planes), len(res.Targets), res.ProcessingTime)
	}
}
