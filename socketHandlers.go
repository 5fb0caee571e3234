package main

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"

	"stutter-detection/analysis"
	"stutter-detection/history"
	"stutter-detection/models"
	"stutter-detection/utils"
	"stutter-detection/wav"
)

type serveFlags struct {
	fs       *flag.FlagSet
	protocol *string
	port     *string
}

func newServeFlags() *serveFlags {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	return &serveFlags{
		fs:       fs,
		protocol: fs.String("proto", "http", "Protocol to use (http or https)"),
		port:     fs.String("p", "5000", "Port to use"),
	}
}

type socketController struct {
	service *analysis.Service
	mode    analysis.Mode
}

func newSocketController(service *analysis.Service, mode analysis.Mode) *socketController {
	return &socketController{service: service, mode: mode}
}

func (c *socketController) handleNewRecording(socket socketio.Conn, recordData string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	logger.InfoContext(ctx, "handleNewRecording called",
		slog.String("socketID", socket.ID()),
		slog.Int("dataLength", len(recordData)),
	)

	if recordData == "" {
		logger.ErrorContext(ctx, "no data received in newRecording event")
		socket.Emit("analysisError", map[string]string{"message": "no audio data received"})
		return
	}

	var recData models.RecordData
	if err := json.Unmarshal([]byte(recordData), &recData); err != nil {
		logger.ErrorContext(ctx, "failed to parse record payload",
			slog.Any("error", xerrors.New(err)))
		socket.Emit("analysisError", map[string]string{"message": "invalid audio payload"})
		return
	}

	started := time.Now()

	audioBytes, err := base64.StdEncoding.DecodeString(recData.Audio)
	if err != nil {
		logger.ErrorContext(ctx, "failed to decode audio payload",
			slog.Any("error", xerrors.New(err)))
		socket.Emit("analysisError", map[string]string{"message": "unable to decode audio"})
		return
	}

	waveform, err := wav.DecodeWaveBytes(audioBytes)
	if err != nil {
		logger.ErrorContext(ctx, "failed to decode wav data",
			slog.Any("error", xerrors.New(err)))
		socket.Emit("analysisError", map[string]string{"message": "unable to decode audio"})
		return
	}

	logger.InfoContext(ctx, "received recording",
		slog.String("socketID", socket.ID()),
		slog.Int("sampleRate", waveform.SampleRate),
		slog.Int("frameCount", len(waveform.Samples)),
		slog.Float64("duration", waveform.DurationSeconds()),
	)

	label := "socket:" + socket.ID()
	report, runErr := c.service.AnalyzeWaveform(ctx, waveform, label)
	if report == nil {
		logger.ErrorContext(ctx, "analysis produced no report",
			slog.Any("error", xerrors.New(runErr)))
		socket.Emit("analysisError", map[string]string{"message": "analysis failed"})
		return
	}
	if runErr != nil {
		logger.WarnContext(ctx, "analysis completed with errors",
			slog.String("socketID", socket.ID()),
			slog.Any("error", xerrors.New(runErr)))
	}

	latency := time.Since(started).Seconds() * 1000
	logger.InfoContext(ctx, "analysis complete",
		slog.String("socketID", socket.ID()),
		slog.Float64("latency_ms", latency),
		slog.Int("eventCount", len(report.Events)),
		slog.String("dominantType", report.Summary.DominantType),
	)

	c.persistRecord(report, recData.Speaker, label, latency)

	socket.Emit("analysisReport", report)
}

// persistRecord appends the run to the JSON history store so the review UI
// can list past analyses.
func (c *socketController) persistRecord(report *analysis.Report, speaker, label string, latencyMs float64) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		log.Printf("[Socket] Failed to marshal report for history: %v\n", err)
		return
	}
	record := &models.AnalysisRecord{
		Timestamp:         time.Now(),
		InputFile:         label,
		Speaker:           speaker,
		Mode:              string(c.mode),
		DominantType:      report.Summary.DominantType,
		EventCount:        len(report.Events),
		AverageConfidence: report.Summary.AverageConfidence,
		HasEvents:         report.Summary.HasEvents,
		LatencyMs:         latencyMs,
		Report:            reportJSON,
	}
	if err := history.SaveRecord(record); err != nil {
		log.Printf("[Socket] Failed to save analysis record: %v\n", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// newAnalyzeHandler serves one-shot HTTP analysis of a base64 WAV payload.
func newAnalyzeHandler(service *analysis.Service) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var recData models.RecordData
		if err := json.NewDecoder(r.Body).Decode(&recData); err != nil {
			logger.ErrorContext(ctx, "failed to parse request body",
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		if recData.Audio == "" {
			writeJSONError(w, http.StatusBadRequest, "no audio data received")
			return
		}

		audioBytes, err := base64.StdEncoding.DecodeString(recData.Audio)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "unable to decode audio")
			return
		}
		waveform, err := wav.DecodeWaveBytes(audioBytes)
		if err != nil {
			logger.ErrorContext(ctx, "failed to decode wav data",
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadRequest, "unable to decode audio")
			return
		}

		report, runErr := service.AnalyzeWaveform(ctx, waveform, "http:"+r.RemoteAddr)
		if report == nil {
			writeJSONError(w, http.StatusInternalServerError, "analysis failed")
			return
		}
		if runErr != nil {
			logger.WarnContext(ctx, "analysis completed with errors",
				slog.Any("error", xerrors.New(runErr)))
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// newHistoryHandler lists stored analysis runs.
func newHistoryHandler() http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		records, err := history.LoadRecords()
		if err != nil {
			logger.ErrorContext(ctx, "failed to load history",
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	logger := utils.GetLogger()
	allowOriginFunc := func(r *http.Request) bool { return true }

	cfg := analysis.DefaultConfig()
	cfg.Mode = analysis.Mode(utils.GetEnv("ANALYSIS_MODE", string(analysis.ModeCoarse)))

	modelPath := utils.GetEnv("MODEL_PATH", filepath.Join("analysis", "prototypes.json"))
	service, err := buildService(cfg, modelPath, logger)
	if err != nil {
		log.Fatalf("failed to build analysis service: %v", err)
	}

	controller := newSocketController(service, cfg.Mode)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		return nil
	})

	server.OnEvent("/", "newRecording", func(socket socketio.Conn, msg string) {
		log.Printf("newRecording event received from %s, data length: %d\n", socket.ID(), len(msg))
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleNewRecording for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleNewRecording(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/audio/analyze", newAnalyzeHandler(service))
	mux.HandleFunc("/api/analyses", newHistoryHandler())
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, protocol == "https", port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
