package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// DisplayDelta is the target interval between two display refreshes.
const DisplayDelta = 1000 * time.Millisecond

type RenderOptions struct {
	Processes        bool
	Connections      bool
	Addresses        bool
	TotalUtilization bool
}

type Options struct {
	Interface string
	Raw       bool
	NoResolve bool
	ShowDNS   bool
	Render    RenderOptions

	LogFile string
	Debug   bool
}

// BindFlags registers every option on fs.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Interface, "interface", "i", "", "The network interface to listen on, eg. eth0")
	fs.BoolVarP(&o.Raw, "raw", "r", false, "Machine friendlier output")
	fs.BoolVarP(&o.NoResolve, "no-resolve", "n", false, "Do not attempt to resolve IPs to their hostnames")
	fs.BoolVarP(&o.ShowDNS, "show-dns", "s", false, "Show DNS queries")
	fs.BoolVarP(&o.Render.Processes, "processes", "p", false, "Show processes table only")
	fs.BoolVarP(&o.Render.Connections, "connections", "c", false, "Show connections table only")
	fs.BoolVarP(&o.Render.Addresses, "addresses", "a", false, "Show remote addresses table only")
	fs.BoolVarP(&o.Render.TotalUtilization, "total-utilization", "t", false, "Show total (cumulative) usages")
	fs.StringVar(&o.LogFile, "log-file", "", "Write diagnostic logs to this file")
	fs.BoolVar(&o.Debug, "debug", false, "Enable debug logging (requires --log-file)")
}

func (o *Options) Validate() error {
	if strings.ContainsAny(o.Interface, " \t/") {
		return errors.New("invalid interface name")
	}
	if o.Debug && o.LogFile == "" {
		return errors.New("--debug requires --log-file")
	}
	return nil
}

// Resolve reports whether reverse DNS augmentation is enabled.
func (o *Options) Resolve() bool {
	return !o.NoResolve
}
