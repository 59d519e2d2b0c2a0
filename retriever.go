package retrievedevices

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/builtbyproxy/retrieve-devices/internal/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Device is a registered device as handed to later pipeline steps.
type Device struct {
	Name string `json:"name"`
	UDID string `json:"udid"`
}

// Retriever fetches the registered devices of an App Store Connect team,
// writes them to a file and publishes them on the lane.
type Retriever struct {
	Lane        *Lane
	Auth        Authenticator
	Credentials CredentialSource
	Recorder    DeviceRecorder
	// Console receives one "UDID: ... | NAME: ..." line per device.
	Console io.Writer
}

// Result summarises a successful run.
type Result struct {
	Devices      []Device
	AuthMode     AuthMode
	OutputPath   string
	BytesWritten int
}

// NewRetriever wires the production collaborators around lane.
func NewRetriever(lane *Lane) *Retriever {
	if lane == nil {
		lane = NewLane(nil)
	}
	return &Retriever{
		Lane:        lane,
		Auth:        AppStoreConnect{ClientOptions: ClientOptionsFromEnv()},
		Credentials: credentials.NewManager(),
		Recorder:    noopRecorder{},
		Console:     os.Stdout,
	}
}

// Run validates opts, authenticates, fetches the device list, writes the
// output file and publishes the list. Any failure aborts the run.
func (r *Retriever) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if r.Lane == nil || r.Auth == nil {
		return nil, errors.New("retriever: lane and authenticator are required")
	}

	session, mode, err := r.ResolveAuth(ctx, opts)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("Fetching list of currently registered devices...")
	devices, err := FetchDevices(ctx, session)
	if err != nil {
		return nil, err
	}
	log.Info().Int("count", len(devices)).Msg("Successfully retrieved the following devices")

	format, _ := ParseOutputFormat(string(opts.Format))
	path := opts.outputPath()
	console := r.Console
	if console == nil {
		console = io.Discard
	}
	written, err := EmitDevices(path, devices, format, console)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Int("bytes", written).Str("format", string(format)).Msg("device list written")

	if err := r.Lane.PublishDevices(ctx, devices); err != nil {
		return nil, err
	}

	if r.Recorder != nil {
		if err := r.Recorder.RecordDevices(ctx, devices); err != nil {
			log.Error().Err(err).Int("count", len(devices)).Msg("record devices failed")
		}
	}

	return &Result{
		Devices:      devices,
		AuthMode:     mode,
		OutputPath:   path,
		BytesWritten: written,
	}, nil
}

// FetchDevices lists every registered device and keeps only name and udid,
// preserving API order.
func FetchDevices(ctx context.Context, session DeviceLister) ([]Device, error) {
	if session == nil {
		return nil, errors.New("fetch devices: session is nil")
	}
	start := time.Now()
	remote, err := session.ListDevices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch registered devices")
	}
	devices := make([]Device, 0, len(remote))
	for _, d := range remote {
		devices = append(devices, Device{Name: d.Name, UDID: d.UDID})
	}
	log.Debug().Int("count", len(devices)).Dur("elapsed", time.Since(start)).Msg("devices fetched")
	return devices, nil
}
