package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/detections"
	"github.com/banshee-data/trajectory.report/internal/fsutil"
	"github.com/banshee-data/trajectory.report/internal/pipeline"
	"github.com/banshee-data/trajectory.report/internal/report"
	"github.com/banshee-data/trajectory.report/internal/trajplot"
	"github.com/banshee-data/trajectory.report/internal/units"
	"github.com/banshee-data/trajectory.report/internal/version"
)

var (
	dataDir     = flag.String("data", "", "Dataset directory holding bboxes_light.csv and xyz/ (overridable with -csv and -xyz-dir)")
	csvPath     = flag.String("csv", "", "Path to the detections CSV (overrides -data)")
	xyzDir      = flag.String("xyz-dir", "", "Directory of per-frame depth NPZ files (overrides -data)")
	outDir      = flag.String("out", "out", "Output directory for rendered plots")
	patchRadius = flag.Int("patch-radius", 2, "Half-width of the depth sampling window (radius 2 samples a 5x5 patch)")
	topBias     = flag.Float64("top-bias", detections.DefaultTopBias, "Vertical sample position within the box, 0.0 top edge to 1.0 bottom edge (0.35 favours the housing's upper half)")
	workers     = flag.Int("workers", 1, "Concurrent depth sampling workers (1 = sequential)")
	unitsFlag   = flag.String("units", units.Meters, "Display units for rendered plots: m or ft")
	renderGIF   = flag.Bool("gif", false, "Also render an animated GIF of the trajectory")
	gifFPS      = flag.Int("gif-fps", 10, "GIF frame rate")
	renderHTML  = flag.Bool("html", false, "Also render an interactive HTML chart")
	tuningPath  = flag.String("tuning", "", "Path to a JSON tuning config (explicit flags take precedence)")
	dbPath      = flag.String("db-path", "trajectory.db", "Path to the SQLite run database (empty disables run recording)")
	serveMode   = flag.Bool("serve", false, "Serve recorded runs over HTTP instead of processing a dataset")
	listen      = flag.String("listen", ":8080", "HTTP listen address for serve mode")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// Constants
const detectionsFileName = "bboxes_light.csv"
const depthDirName = "xyz"

// resolveInputs combines the -data convention with the explicit -csv and
// -xyz-dir overrides. Explicit paths win; -data fills whichever is unset.
func resolveInputs(dataDir, csvPath, xyzDir string) (string, string) {
	if dataDir != "" {
		if csvPath == "" {
			csvPath = filepath.Join(dataDir, detectionsFileName)
		}
		if xyzDir == "" {
			xyzDir = filepath.Join(dataDir, depthDirName)
		}
	}
	return csvPath, xyzDir
}

// datasetLabel names the run after the dataset directory when one was
// given, otherwise after the CSV file.
func datasetLabel(dataDir, csvPath string) string {
	if dataDir != "" {
		return filepath.Base(filepath.Clean(dataDir))
	}
	base := filepath.Base(csvPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// skipSummary groups skipped frames by reason, e.g.
// "depth file missing: 2, no valid depth in patch: 1".
func skipSummary(skips []pipeline.Skip) string {
	if len(skips) == 0 {
		return ""
	}
	counts := make(map[string]int)
	for _, s := range skips {
		counts[s.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		parts = append(parts, fmt.Sprintf("%s: %d", reason, counts[reason]))
	}
	return strings.Join(parts, ", ")
}

func runServe() {
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *dbPath == "" {
		log.Fatal("Database path is required for serve mode (use -db-path)")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := report.NewWebServer(report.WebServerConfig{
		Address: *listen,
		DB:      database,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
		log.Print("web server routine terminated")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func runBatch() {
	csvFile, depthDir := resolveInputs(*dataDir, *csvPath, *xyzDir)
	if csvFile == "" {
		log.Fatal("A detections CSV is required (use -data or -csv)")
	}
	if depthDir == "" {
		log.Fatal("A depth map directory is required (use -data or -xyz-dir)")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("Invalid units %q (valid: %s)", *unitsFlag, units.GetValidUnitsString())
	}
	if *gifFPS < 1 || *gifFPS > 60 {
		log.Fatalf("Invalid GIF frame rate %d (must be between 1 and 60)", *gifFPS)
	}

	params := pipeline.DefaultParams()
	displayUnits := units.Meters
	fps := 10

	if *tuningPath != "" {
		tuning, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning.ApplyToParams(&params)
		displayUnits = tuning.GetUnits()
		fps = tuning.GetGIFFPS()
		log.Printf("Loaded tuning config from %s", *tuningPath)
	}

	// Flags given on the command line take precedence over the tuning file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "patch-radius":
			params.PatchRadius = *patchRadius
		case "top-bias":
			params.TopBias = *topBias
		case "workers":
			params.Workers = *workers
		case "units":
			displayUnits = *unitsFlag
		case "gif-fps":
			fps = *gifFPS
		}
	})
	params.DepthDir = depthDir

	var database *db.DB
	if *dbPath != "" {
		var err error
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	dets, err := detections.LoadFile(csvFile)
	if err != nil {
		log.Fatalf("Failed to load detections: %v", err)
	}
	log.Printf("Loaded %d detections from %s", len(dets), csvFile)

	fsys := fsutil.OSFileSystem{}
	result, err := pipeline.Run(fsys, dets, params)
	if err != nil {
		log.Fatalf("Estimation failed: %v", err)
	}

	run := &db.Run{
		Dataset:        datasetLabel(*dataDir, csvFile),
		SourceCSV:      csvFile,
		FramesTotal:    len(dets),
		FramesUsed:     len(result.Samples),
		FramesSkipped:  len(result.Skipped),
		PatchRadius:    params.PatchRadius,
		TopBias:        params.TopBias,
		ReferenceTheta: result.ReferenceTheta,
	}
	positions := make([]db.Position, len(result.Positions))
	for i := 0; i < len(result.Positions); i++ {
		sample := result.Samples[i]
		positions[i] = db.Position{
			FrameID: sample.FrameID,
			Forward: result.Positions[i].Forward,
			Lateral: result.Positions[i].Lateral,
			CameraX: sample.Vector.X,
			CameraY: sample.Vector.Y,
			CameraZ: sample.Vector.Z,
		}
	}

	// Record before rendering so the HTML chart carries the stored run ID.
	if database != nil {
		if err := database.RecordRun(run, positions); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		log.Printf("Recorded run %s in %s", run.RunID, *dbPath)
	}

	style := trajplot.Style{Units: displayUnits, Title: "Ego Trajectory (BEV)"}

	pngPath := filepath.Join(*outDir, "trajectory.png")
	if err := trajplot.SavePNG(fsys, result.Positions, pngPath, style); err != nil {
		log.Fatalf("Failed to render PNG: %v", err)
	}
	log.Printf("Wrote %s", pngPath)

	if *renderGIF {
		gifPath := filepath.Join(*outDir, "trajectory.gif")
		if err := trajplot.SaveGIF(fsys, result.Positions, gifPath, fps, style); err != nil {
			log.Fatalf("Failed to render GIF: %v", err)
		}
		log.Printf("Wrote %s", gifPath)
	}

	if *renderHTML {
		htmlPath := filepath.Join(*outDir, "trajectory.html")
		if err := report.WriteHTMLFile(fsys, htmlPath, run, positions); err != nil {
			log.Fatalf("Failed to render HTML chart: %v", err)
		}
		log.Printf("Wrote %s", htmlPath)
	}

	log.Printf("Run complete: %d/%d frames used, reference heading %.4f rad",
		run.FramesUsed, run.FramesTotal, run.ReferenceTheta)
	if summary := skipSummary(result.Skipped); summary != "" {
		log.Printf("Skipped %d frames (%s)", len(result.Skipped), summary)
	}
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("trajectory-report %s\n", version.String())
		return
	}

	// Database maintenance subcommand: trajectory-report migrate <up|down|...>
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		if *dbPath == "" {
			log.Fatal("Database path is required for migrate (use -db-path)")
		}
		db.RunMigrateCommand(args[1:], *dbPath)
		return
	}

	if *serveMode {
		runServe()
		return
	}
	runBatch()
}
