package buildconfig

// Set at build time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/conductor/internal/buildconfig.version=v1.2.0 \
//	  -X github.com/Harshitk-cp/conductor/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// Info is the payload served by GET /version and printed by conductorctl.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func Current() Info {
	return Info{Version: version, Commit: commit}
}

func (i Info) String() string {
	return i.Version + " (" + i.Commit + ")"
}
