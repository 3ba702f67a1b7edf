// Package main wires config, objectstore, sink, checkpoint, and metrics
// together into a runnable demo: it reads newline-delimited JSON records
// from stdin and writes them through the two-phase-commit filesystem sink,
// checkpointing periodically and resuming from the last checkpoint on
// restart.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/gurre/filesystemsink/awsclient"
	"github.com/gurre/filesystemsink/checkpoint"
	"github.com/gurre/filesystemsink/codec"
	"github.com/gurre/filesystemsink/config"
	"github.com/gurre/filesystemsink/filewriter"
	"github.com/gurre/filesystemsink/metrics"
	"github.com/gurre/filesystemsink/multipart"
	"github.com/gurre/filesystemsink/objectstore"
	"github.com/gurre/filesystemsink/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses flags, validates configuration, and drives the sink against
// stdin until EOF or an interrupt signal.
func run() error {
	fs := flag.NewFlagSet("filesink-demo", flag.ExitOnError)

	dest := fs.String("dest", "", "destination (s3://bucket/prefix, gs://bucket/prefix, file:///dir, or a plain local directory)")
	checkpointURI := fs.String("checkpoint", "", "checkpoint uri (s3://bucket/key or file:///path/to/checkpoint.json)")
	subtaskID := fs.Int("subtask", 0, "this subtask's index")
	maxParts := fs.Int("max-parts", filewriter.DefaultPartLimit, "roll a file after this many parts")
	targetFileSize := fs.Int("target-file-size", 0, "roll a file after this many bytes (0 disables)")
	inactivitySeconds := fs.Int("inactivity-seconds", 0, "roll a file idle this long (0 disables)")
	rolloverSeconds := fs.Int("rollover-seconds", int(filewriter.DefaultRolloverDuration/time.Second), "roll a file open this long regardless of activity")
	targetPartSize := fs.Int("target-part-size", codec.DefaultTargetPartSize, "buffer this many bytes before uploading a part")
	checkpointInterval := fs.Duration("checkpoint-interval", 10*time.Second, "how often to checkpoint and commit finished files")
	checkpointRegion := fs.String("checkpoint-region", "", "AWS region for an s3:// checkpoint uri (defaults to AWS_REGION env)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := &config.Config{
		SubtaskID:                 *subtaskID,
		Write:                     parseDestination(*dest),
		MaxParts:                  *maxParts,
		TargetFileSize:            *targetFileSize,
		InactivityRolloverSeconds: *inactivitySeconds,
		RolloverSeconds:           *rolloverSeconds,
		CheckpointURI:             *checkpointURI,
		ShutdownTimeout:           *shutdownTimeout,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	store, err := openDestination(ctx, cfg.Write)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}

	checkpointStore, err := openCheckpointStore(ctx, cfg.CheckpointURI, *checkpointRegion)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	snap, found, err := checkpointStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	policy := buildRollingPolicy(cfg)
	basePath := destinationBasePath(cfg.Write)

	reporter := metrics.NewMetrics()

	s := sink.New[json.RawMessage, json.RawMessage](
		ctx, store, basePath,
		func() codec.BatchBuilder[json.RawMessage, json.RawMessage] { return codec.NewPassThroughBuilder[json.RawMessage]() },
		func() codec.BatchBufferingWriter[json.RawMessage] { return codec.NewJSONBufferingWriter[json.RawMessage](*targetPartSize) },
		policy,
	)

	if found {
		if err := s.Init(ctx, snap.Recovery.NextFileIndex, cfg.SubtaskID, snap.Recovery.ActiveFiles); err != nil {
			return fmt.Errorf("failed to replay checkpoint: %w", err)
		}
		if len(snap.PreCommit) > 0 {
			if err := s.Commit(ctx, snap.PreCommit); err != nil {
				return fmt.Errorf("failed to commit files left over from the prior run: %w", err)
			}
		}
	} else {
		if err := s.Init(ctx, 0, cfg.SubtaskID, nil); err != nil {
			return fmt.Errorf("failed to initialize sink: %w", err)
		}
	}

	ticker := time.NewTicker(*checkpointInterval)
	defer ticker.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	stopping := false
	for !stopping {
		select {
		case <-ctx.Done():
			stopping = true
		case <-ticker.C:
			if err := checkpointAndCommit(ctx, s, checkpointStore, reporter, false); err != nil {
				return err
			}
			continue
		default:
		}
		if stopping {
			break
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		record := make(json.RawMessage, len(line))
		copy(record, line)
		if err := s.InsertRecord(ctx, record, time.Now()); err != nil {
			reporter.RecordError()
			if recovery, _, ckErr := s.Checkpoint(ctx, cfg.SubtaskID, true); ckErr == nil {
				abortInFlightUploads(ctx, store, recovery)
			}
			return fmt.Errorf("failed to insert record: %w", err)
		}
		reporter.RecordWritten()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed reading stdin: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := checkpointAndCommit(shutdownCtx, s, checkpointStore, reporter, true); err != nil {
		return err
	}

	fmt.Println(reporter.GenerateReport().String())
	return nil
}

// checkpointAndCommit takes a checkpoint, persists it, and commits every
// file the checkpoint reported ready, so a subsequent restart resumes from
// exactly what's left: the still-open files in Recovery.ActiveFiles.
func checkpointAndCommit(ctx context.Context, s *sink.Sink[json.RawMessage], store checkpoint.Store[json.RawMessage], reporter *metrics.Metrics, stopping bool) error {
	recovery, preCommit, err := s.Checkpoint(ctx, 0, stopping)
	if err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	if err := store.Save(ctx, checkpoint.Snapshot[json.RawMessage]{Recovery: recovery, PreCommit: preCommit}); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	if len(preCommit) == 0 {
		return nil
	}
	if err := s.Commit(ctx, preCommit); err != nil {
		return fmt.Errorf("failed to commit finished files: %w", err)
	}
	for range preCommit {
		reporter.RecordFileFinalized()
	}
	return nil
}

// abortInFlightUploads best-effort cancels every active file's multipart
// upload after a fatal error, so an upload nobody will ever finish doesn't
// sit there consuming storage indefinitely. Only backends that implement
// objectstore.Aborter support this; GCS and the local filesystem have
// nothing to cancel server-side, so the type assertion simply fails there.
func abortInFlightUploads(ctx context.Context, store objectstore.Port, recovery multipart.DataRecovery[json.RawMessage]) {
	aborter, ok := store.(objectstore.Aborter)
	if !ok {
		return
	}
	for _, active := range recovery.ActiveFiles {
		id := active.Data.MultipartID
		if id == "" {
			continue
		}
		if err := aborter.AbortMultipart(ctx, active.Filename, id); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to abort multipart upload for %s: %v\n", active.Filename, err)
		}
	}
}

func buildRollingPolicy(cfg *config.Config) filewriter.RollingPolicy {
	return filewriter.FromSettings(filewriter.Settings{
		MaxParts:                  cfg.MaxParts,
		TargetFileSize:            cfg.TargetFileSize,
		InactivityRolloverSeconds: cfg.InactivityRolloverSeconds,
		RolloverSeconds:           cfg.RolloverSeconds,
	})
}

// parseDestination turns the -dest flag into a config.Destination, favoring
// an explicit scheme when present and falling back to a plain local
// directory otherwise.
func parseDestination(raw string) config.Destination {
	switch {
	case strings.HasPrefix(raw, "s3://"):
		parsed, err := objectstore.ParseURL(raw)
		if err != nil {
			return config.Destination{Kind: config.FolderURI, URI: raw}
		}
		return config.Destination{
			Kind:     config.S3Bucket,
			Bucket:   parsed.Bucket,
			Prefix:   parsed.Key,
			Region:   parsed.Region,
			Endpoint: parsed.Endpoint,
		}
	case strings.HasPrefix(raw, "gs://"), strings.HasPrefix(raw, "file://"):
		return config.Destination{Kind: config.FolderURI, URI: raw}
	default:
		return config.Destination{Kind: config.LocalFilesystem, Directory: raw}
	}
}

func destinationBasePath(d config.Destination) string {
	switch d.Kind {
	case config.S3Bucket:
		return d.Prefix
	case config.FolderURI:
		parsed, err := objectstore.ParseURL(d.URI)
		if err != nil {
			return ""
		}
		if parsed.Backend == objectstore.BackendLocal {
			return ""
		}
		return parsed.Key
	default:
		return ""
	}
}

func openDestination(ctx context.Context, d config.Destination) (objectstore.Port, error) {
	switch d.Kind {
	case config.LocalFilesystem:
		return objectstore.NewLocalStore(d.Directory)
	case config.S3Bucket:
		url := "s3://" + d.Bucket
		if d.Prefix != "" {
			url += "/" + d.Prefix
		}
		return objectstore.Open(ctx, url, objectstore.Options{Region: d.Region, Endpoint: d.Endpoint})
	case config.FolderURI:
		return objectstore.Open(ctx, d.URI, objectstore.Options{})
	default:
		return nil, fmt.Errorf("unknown destination kind %d", d.Kind)
	}
}

// openCheckpointStore builds the Store matching the checkpoint uri's
// scheme, loading AWS default credentials for an s3:// uri the same way
// objectstore.Open does for a destination.
func openCheckpointStore(ctx context.Context, uri, region string) (checkpoint.Store[json.RawMessage], error) {
	if strings.HasPrefix(uri, "s3://") {
		var opts []func(*awsconfig.LoadOptions) error
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := awsclient.NewS3Client(s3.NewFromConfig(awsCfg))
		return checkpoint.NewS3Store[json.RawMessage](client, uri)
	}
	return checkpoint.NewFileStore[json.RawMessage](uri)
}
