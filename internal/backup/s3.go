// Package backup uploads compressed database archives to an S3-compatible
// bucket (AWS S3, Cloudflare R2, MinIO). Disabled entirely when no
// credentials are configured.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"marketpulse/internal/config"
	"marketpulse/internal/database"
)

const archivePrefix = "marketpulse-backup-"
const archiveTimeFormat = "2006-01-02-150405"

// minBackupsToKeep backups are retained regardless of age.
const minBackupsToKeep = 3

// Metadata describes one backup archive.
type Metadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Databases []FileMetadata `json:"databases"`
}

// FileMetadata describes one database file inside an archive.
type FileMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Info summarizes a stored backup for listings.
type Info struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// Service creates, uploads and rotates database backups.
type Service struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	dataDir   string
	databases []*database.DB
	log       zerolog.Logger
}

// NewService connects to the configured bucket. Returns an error when called
// with a config whose Enabled() is false; the caller decides whether backup
// is wired at all.
func NewService(ctx context.Context, cfg *config.BackupConfig, dataDir string, databases []*database.DB, log zerolog.Logger) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("backup target not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Service{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		dataDir:   dataDir,
		databases: databases,
		log:       log.With().Str("service", "backup").Logger(),
	}, nil
}

// CreateAndUpload snapshots every database into a staging directory, archives
// them with a metadata file and uploads the archive.
func (s *Service) CreateAndUpload(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	start := time.Now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	meta := Metadata{Timestamp: time.Now().UTC()}
	files := make([]string, 0, len(s.databases)+1)

	for _, db := range s.databases {
		filename := db.Name() + ".db"
		dst := filepath.Join(stagingDir, filename)

		// VACUUM INTO produces a consistent point-in-time copy without
		// blocking writers.
		if _, err := db.Conn().ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}

		info, err := os.Stat(dst)
		if err != nil {
			return fmt.Errorf("failed to stat %s snapshot: %w", db.Name(), err)
		}
		checksum, err := fileChecksum(dst)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", db.Name(), err)
		}

		meta.Databases = append(meta.Databases, FileMetadata{
			Name:      db.Name(),
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	metaPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, "backup-metadata.json")

	archiveName := archivePrefix + time.Now().Format(archiveTimeFormat) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := path.Join(s.prefix, archiveName)
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   archive,
	}); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", archiveInfo.Size()).
		Dur("took", time.Since(start)).
		Msg("Backup uploaded")
	return nil
}

// List returns stored backups, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(path.Join(s.prefix, archivePrefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]Info, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		base := path.Base(*obj.Key)
		if !strings.HasPrefix(base, archivePrefix) || !strings.HasSuffix(base, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(base, archivePrefix), ".tar.gz")
		ts, err := time.Parse(archiveTimeFormat, stamp)
		if err != nil {
			s.log.Warn().Str("key", *obj.Key).Msg("Unparseable backup timestamp, skipping")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, Info{
			Key:       *obj.Key,
			Timestamp: ts,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Rotate deletes backups older than retentionDays, always keeping the newest
// minBackupsToKeep. retentionDays 0 keeps everything.
func (s *Service) Rotate(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	backups, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(b.Key),
		}); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return nil
}

func fileChecksum(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(metaPath string, meta Metadata) error {
	f, err := os.Create(metaPath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath, sourceDir string, filenames []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, name := range filenames {
		if err := addFile(tw, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFile(tw *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
