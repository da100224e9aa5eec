package handlers

import (
	"net/http"
	"runtime"
	"sync/atomic"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/parlorhq/parlor/internal/appid"
)

// AppVersion is the version string reported by health checks.
var AppVersion = "dev"

type buildStamp struct {
	version, commit, date string
}

var build atomic.Pointer[buildStamp]

func init() {
	build.Store(&buildStamp{version: "dev", commit: "unknown", date: "unknown"})
}

// SetVersionInfo records the build metadata linked into the binary.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	build.Store(&buildStamp{version: version, commit: commit, date: buildDate})
}

// VersionResponse is the document served at /version and printed by
// `parlor version --json`.
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// CurrentVersion reports the running binary under name.
func CurrentVersion(name string) VersionResponse {
	stamp := build.Load()
	libs := crucible.GetVersion()

	var resp VersionResponse
	resp.App = AppInfo{
		Name:      name,
		Version:   stamp.version,
		Commit:    stamp.commit,
		BuildDate: stamp.date,
		GoVersion: runtime.Version(),
	}
	resp.Dependencies = DepInfo{Gofulmen: libs.Gofulmen, Crucible: libs.Crucible}
	resp.Runtime.Platform = runtime.GOOS + "/" + runtime.GOARCH
	resp.Runtime.NumCPU = runtime.NumCPU()
	resp.Runtime.NumGoroutines = runtime.NumGoroutine()
	return resp
}

// VersionHandler serves GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := appid.Get(r.Context())
	name := "unknown"
	if err == nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}
	writeJSON(w, http.StatusOK, CurrentVersion(name))
}
