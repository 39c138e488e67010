package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Fato07/runway-music-video-generator/pkg/analysis"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
	"github.com/Fato07/runway-music-video-generator/pkg/results"
)

// RequestFile is the audit copy of the submitted request.
const RequestFile = "request.json"

type generateFlags struct {
	analysisPath string
	analysisID   string
	mood         string
	tempo        float64
	intensity    string
	transition   string
	aspect       string
	aux          []string
	noProxy      bool
}

var genFlags generateFlags

var generateCmd = &cobra.Command{
	Use:   "generate <image-uri>",
	Short: "Generate a video clip from a scene image and a track analysis",
	Long: `Validates the image, submits an image-to-video job to RunwayML, polls it
to completion and downloads the clip into the results directory.

Mood, tempo, beats and transition style come from --analysis; the
individual flags override them.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	f := generateCmd.Flags()
	f.StringVar(&genFlags.analysisPath, "analysis", "", "Track analysis JSON file")
	f.StringVar(&genFlags.analysisID, "analysis-id", "", "Reuse an analysis ID instead of generating one")
	f.StringVar(&genFlags.mood, "mood", "", "Override the overall mood")
	f.Float64Var(&genFlags.tempo, "tempo", 0, "Override the tempo in BPM")
	f.StringVar(&genFlags.intensity, "intensity", "", "Motion intensity (subtle, moderate, strong)")
	f.StringVar(&genFlags.transition, "transition", "", "Transition style sentence")
	f.StringVar(&genFlags.aspect, "aspect", string(orchestrator.AspectLandscape), "Aspect ratio (16:9 or 9:16)")
	f.StringSliceVar(&genFlags.aux, "aux", nil, "Auxiliary image URIs")
	f.BoolVar(&genFlags.noProxy, "no-proxy", false, "Fetch the image directly even when image-proxy-url is set")
}

// buildRequest merges the analysis file with flag overrides. changed
// reports whether a flag was set explicitly.
func buildRequest(imageURI string, flags generateFlags, track *analysis.Result, changed func(string) bool) orchestrator.GenerationRequest {
	req := orchestrator.GenerationRequest{
		AnalysisID:      flags.analysisID,
		SourceImage:     imageURI,
		AuxiliaryImages: flags.aux,
		Options: orchestrator.Options{
			AspectRatio: orchestrator.AspectRatio(flags.aspect),
		},
	}

	if track != nil {
		req.BeatTimestamps = track.Beats
		req.Options.Tempo = track.Tempo
		req.Options.Mood = orchestrator.Mood(track.OverallMood())
		req.Options.TransitionStyle = track.DescribeTransitions()
		req.Options.AnalysisFileName = filepath.Base(flags.analysisPath)
	}

	if changed("mood") || req.Options.Mood == "" {
		req.Options.Mood = orchestrator.Mood(flags.mood)
	}
	if changed("tempo") {
		req.Options.Tempo = flags.tempo
	}
	if changed("transition") {
		req.Options.TransitionStyle = flags.transition
	}
	if flags.intensity != "" {
		req.Options.MotionIntensity = orchestrator.MotionIntensity(flags.intensity)
	} else if req.Options.Tempo > 0 {
		req.Options.MotionIntensity = orchestrator.IntensityForTempo(req.Options.Tempo)
	}
	if req.Options.AnalysisFileName == "" {
		req.Options.AnalysisFileName = filepath.Base(imageURI)
	}
	return req
}

// progressPrinter writes one line per progress event.
func progressPrinter(out io.Writer) orchestrator.Observer {
	return orchestrator.ObserverFunc(func(ev orchestrator.ProgressEvent) {
		if ev.Percent != nil {
			fmt.Fprintf(out, "[%-11s] %3d%%  %s\n", ev.Phase, *ev.Percent, ev.Message)
			return
		}
		fmt.Fprintf(out, "[%-11s]       %s\n", ev.Phase, ev.Message)
	})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if genFlags.noProxy {
		cfg.ImageProxyURL = ""
	}

	var track *analysis.Result
	if genFlags.analysisPath != "" {
		track, err = analysis.Load(genFlags.analysisPath)
		if err != nil {
			return err
		}
	}

	req := buildRequest(args[0], genFlags, track, cmd.Flags().Changed)
	if err := req.Validate(); err != nil {
		return err
	}
	if req.AnalysisID == "" {
		req.AnalysisID = results.NewAnalysisID(req.Options.AnalysisFileName, time.Now())
	}

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.store.WriteJSON(req.AnalysisID, RequestFile, req); err != nil {
		return errors.Wrap(err, "failed to record request")
	}
	if track != nil {
		if _, err := a.store.WriteJSON(req.AnalysisID, results.AnalysisFile, track); err != nil {
			return errors.Wrap(err, "failed to record analysis")
		}
	}

	log.Info().Str("analysis_id", req.AnalysisID).Str("image", req.SourceImage).Msg("generate_started")

	out := cmd.OutOrStdout()
	g, err := a.runner.Generate(ctx, req, progressPrinter(out))
	if err != nil {
		return err
	}

	path, err := a.store.AbsPath(g.LocalPath)
	if err != nil {
		path = g.LocalPath
	}
	fmt.Fprintf(out, "✅ Video saved: %s\n", path)
	if g.S3Key != "" {
		fmt.Fprintf(out, "☁️  Mirrored to s3://%s/%s\n", a.mirror.Bucket(), g.S3Key)
	}
	return nil
}
