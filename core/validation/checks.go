package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"time"
)

// CheckEnvFile reports whether the .env file exists. A missing file is a
// warning since the process environment may carry the configuration.
func CheckEnvFile(path string) Result {
	if path == "" {
		return Skip("No .env file configured")
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Warn("%s not found, using the process environment", path)
	case err != nil:
		return Fail(err, "Cannot read %s", path)
	case info.IsDir():
		return Fail(fmt.Errorf("%s is a directory", path), "Invalid .env path")
	}
	return Pass("Found %s", path)
}

// CheckFreeSpace verifies the filesystem holding path has at least
// required bytes free.
func CheckFreeSpace(path string, required int64) Result {
	info, err := GetDiskSpace(path)
	if err != nil {
		return Fail(err, "Cannot inspect %s", path)
	}
	if info.Free < required {
		err := &DiskSpaceError{Path: info.Path, Required: required, Available: info.Free}
		return Fail(err, "%s free", FormatBytes(info.Free))
	}
	return Pass("%s free at %s", FormatBytes(info.Free), info.Path)
}

// Pinger is a store that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckPing pings p and reports the round trip.
func CheckPing(ctx context.Context, p Pinger) Result {
	started := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Fail(err, "Store unreachable")
	}
	return Pass("Reachable (latency: %v)", time.Since(started).Round(time.Microsecond))
}

// CheckSchema reports the migration state returned by version.
func CheckSchema(version func() (uint, bool, error)) Result {
	v, dirty, err := version()
	switch {
	case err != nil:
		return Fail(err, "Cannot read schema version")
	case dirty:
		return Fail(fmt.Errorf("schema version %d is dirty", v), "A migration failed part way, fix it with `dashboard migrate`")
	case v == 0:
		return Warn("No migrations applied yet, the server applies them on start")
	}
	return Pass("Schema version %d", v)
}

// healthBody is the subset of the /health response the check reads.
type healthBody struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	ActiveStreams int64  `json:"activeStreams"`
	Store         *struct {
		Error string `json:"error"`
	} `json:"store"`
}

// CheckServerHealth queries baseURL's /health endpoint.
func CheckServerHealth(ctx context.Context, client *http.Client, baseURL string) Result {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint, err := url.JoinPath(baseURL, "health")
	if err != nil {
		return Fail(err, "Invalid server URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Fail(err, "Invalid server URL")
	}
	resp, err := client.Do(req)
	if err != nil {
		return Fail(err, "Server unreachable")
	}
	defer resp.Body.Close()

	var body healthBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Fail(err, "Unexpected response from %s (HTTP %d)", endpoint, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("server reports %q", body.Status)
		if body.Store != nil && body.Store.Error != "" {
			err = fmt.Errorf("server reports %q: store: %s", body.Status, body.Store.Error)
		}
		return Fail(err, "HTTP %d", resp.StatusCode)
	}
	return Pass("Version %s, %d active streams", body.Version, body.ActiveStreams)
}
