package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cgtracker/cgt/internal/config"
	"github.com/cgtracker/cgt/internal/displacement"
	"github.com/cgtracker/cgt/internal/model/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement is the name displacement samples are written under
const Measurement = "displacement"

// ErrDisabled is returned by Connect when influx export is switched off
var ErrDisabled = errors.New("influx export disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Config       config.InfluxConfig
	Logger       zerolog.Logger
	BackupPath   string

	backupFile *os.File
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	return &Manager{
		IsValid:    false,
		Config:     cfg,
		Logger:     log,
		BackupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB, falling back to the gzip
// backup file when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.Config.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.Config.URL(),
		m.Config.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		m.Client.Close()
		m.Client = nil
		return m.UseBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.Writer = m.Client.WriteAPI(m.Config.Org, m.Config.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.Config.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.IsValid = true
	m.Logger.Info().Str("url", m.Config.URL()).Msg("InfluxDB client initialized")
	return nil
}

// UseBackup routes all writes to the gzip line-protocol backup file
func (m *Manager) UseBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.BackupPath == "" {
		return fmt.Errorf("no influx backup path configured")
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	m.IsValid = false
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.Config.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure bucket exists; growth runs are kept indefinitely
	bucket := m.Config.Bucket
	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err != nil {
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 0,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Export writes the samples of every result and returns the number of points
func (m *Manager) Export(ctx context.Context, meta core.ProjectMeta, results []displacement.RegionResult) (int, error) {
	n := 0
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		for _, p := range SeriesPoints(meta, res) {
			if err := m.WritePoint(p); err != nil {
				return n, err
			}
			n++
		}
	}
	m.Logger.Debug().Int("points", n).Str("project", meta.Name).Msg("Exported displacement series")
	return n, nil
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var err error
	if m.BackupWriter != nil {
		err = m.BackupWriter.Close()
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		if cerr := m.backupFile.Close(); err == nil {
			err = cerr
		}
		m.backupFile = nil
	}
	return err
}

// SeriesPoints converts a region result into one point per displacement
// sample, stamped at the sample's end frame relative to the project start.
func SeriesPoints(meta core.ProjectMeta, res displacement.RegionResult) []*influxdb2_write.Point {
	fps := res.Scale.FrameRate
	var points []*influxdb2_write.Point
	for _, series := range res.All() {
		cumulative := 0.0
		for _, sample := range series.Samples {
			cumulative += sample.Length
			p := influxdb2_write.NewPointWithMeasurement(Measurement)
			if meta.Name != "" {
				p.AddTag("project", meta.Name)
			}
			p.AddTag("region", strconv.Itoa(res.RegionID)).
				AddTag("family", strconv.Itoa(series.FamilyID)).
				AddTag("kind", series.Kind.String()).
				AddTag("label", series.Label).
				AddField("length", sample.Length).
				AddField("velocity", sample.Velocity(fps)).
				AddField("cumulative", cumulative).
				AddField("start_frame", sample.Start).
				AddField("end_frame", sample.End).
				SetTime(frameTime(meta.StartTime, sample.End, fps))
			points = append(points, p)
		}
	}
	return points
}

func frameTime(start time.Time, frame int, fps float64) time.Time {
	if fps <= 0 {
		return start
	}
	return start.Add(time.Duration(float64(frame) / fps * float64(time.Second)))
}
