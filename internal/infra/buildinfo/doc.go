// Package buildinfo provides build information for RailState.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/railstate-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Values left unset fall back to the module build information embedded
// by the Go toolchain.
package buildinfo
